package rpc

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// recordingInterceptor appends lifecycle and request events to a shared log.
type recordingInterceptor struct {
	name     string
	log      *[]string
	openErr  error
	closeErr error
}

func (r *recordingInterceptor) Open(ctx context.Context) error {
	*r.log = append(*r.log, "open:"+r.name)
	return r.openErr
}

func (r *recordingInterceptor) Intercept(ctx context.Context, req *Request, next Next) (any, error) {
	*r.log = append(*r.log, "before:"+r.name)
	res, err := next(ctx)
	*r.log = append(*r.log, "after:"+r.name)
	return res, err
}

func (r *recordingInterceptor) Close() error {
	*r.log = append(*r.log, "close:"+r.name)
	return r.closeErr
}

func TestChain_OrderFirstIsOutermost(t *testing.T) {
	t.Parallel()

	var log []string
	chain := Compose(
		&recordingInterceptor{name: "a", log: &log},
		&recordingInterceptor{name: "b", log: &log},
	)

	res, err := chain.Handle(context.Background(), NewRequest("1", "echo", Connection{}, nil),
		func(ctx context.Context, req *Request) (any, error) {
			log = append(log, "handler")
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if res != "ok" {
		t.Errorf("result = %v, want ok", res)
	}

	want := []string{"before:a", "before:b", "handler", "after:b", "after:a"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("order = %v, want %v", log, want)
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	t.Parallel()

	rejected := errors.New("rejected")
	handlerCalled := false
	innerCalled := false

	chain := Compose(
		InterceptorFunc(func(ctx context.Context, req *Request, next Next) (any, error) {
			return nil, rejected
		}),
		InterceptorFunc(func(ctx context.Context, req *Request, next Next) (any, error) {
			innerCalled = true
			return next(ctx)
		}),
	)

	_, err := chain.Handle(context.Background(), NewRequest("1", "echo", Connection{}, nil),
		func(ctx context.Context, req *Request) (any, error) {
			handlerCalled = true
			return nil, nil
		})
	if !errors.Is(err, rejected) {
		t.Fatalf("err = %v, want %v", err, rejected)
	}
	if innerCalled || handlerCalled {
		t.Error("stages after a short-circuit must not run")
	}
}

func TestChain_PropagatesHandlerErrorVerbatim(t *testing.T) {
	t.Parallel()

	var log []string
	handlerErr := errors.New("boom")
	chain := Compose(&recordingInterceptor{name: "a", log: &log})

	_, err := chain.Handle(context.Background(), NewRequest("1", "echo", Connection{}, nil),
		func(ctx context.Context, req *Request) (any, error) {
			return nil, handlerErr
		})
	if err != handlerErr {
		t.Errorf("err = %v, want the handler error unchanged", err)
	}
}

func TestChain_PostProcessResult(t *testing.T) {
	t.Parallel()

	chain := Compose(InterceptorFunc(func(ctx context.Context, req *Request, next Next) (any, error) {
		res, err := next(ctx)
		if err != nil {
			return nil, err
		}
		return res.(string) + "!", nil
	}))

	res, err := chain.Handle(context.Background(), NewRequest("1", "echo", Connection{}, nil),
		func(ctx context.Context, req *Request) (any, error) {
			return "hi", nil
		})
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if res != "hi!" {
		t.Errorf("result = %v, want hi!", res)
	}
}

func TestChain_OpenRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	var log []string
	openErr := errors.New("cannot open")
	chain := Compose(
		&recordingInterceptor{name: "a", log: &log},
		&recordingInterceptor{name: "b", log: &log},
		&recordingInterceptor{name: "c", log: &log, openErr: openErr},
		&recordingInterceptor{name: "d", log: &log},
	)

	err := chain.Open(context.Background())
	if !errors.Is(err, openErr) {
		t.Fatalf("Open() err = %v, want %v", err, openErr)
	}

	want := []string{"open:a", "open:b", "open:c", "close:b", "close:a"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}
}

func TestChain_CloseReverseOrderJoinsErrors(t *testing.T) {
	t.Parallel()

	var log []string
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	chain := Compose(
		&recordingInterceptor{name: "a", log: &log, closeErr: errA},
		&recordingInterceptor{name: "b", log: &log},
		&recordingInterceptor{name: "c", log: &log, closeErr: errC},
	)

	err := chain.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("Close() err = %v, want both close errors", err)
	}

	want := []string{"close:c", "close:b", "close:a"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("close order = %v, want %v", log, want)
	}
}

func TestCompose_SkipsNil(t *testing.T) {
	t.Parallel()

	var log []string
	chain := Compose(nil, &recordingInterceptor{name: "a", log: &log}, nil)
	if chain.Len() != 1 {
		t.Errorf("Len() = %d, want 1", chain.Len())
	}
}

func TestChain_Nested(t *testing.T) {
	t.Parallel()

	var log []string
	inner := Compose(
		&recordingInterceptor{name: "b", log: &log},
		&recordingInterceptor{name: "c", log: &log},
	)
	outer := Compose(&recordingInterceptor{name: "a", log: &log}, inner)

	if err := outer.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	_, _ = outer.Handle(context.Background(), NewRequest("1", "echo", Connection{}, nil),
		func(ctx context.Context, req *Request) (any, error) { return nil, nil })
	if err := outer.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	want := []string{
		"open:a", "open:b", "open:c",
		"before:a", "before:b", "before:c", "after:c", "after:b", "after:a",
		"close:c", "close:b", "close:a",
	}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("events = %v, want %v", log, want)
	}
}

func TestChain_Empty(t *testing.T) {
	t.Parallel()

	chain := Compose()
	res, err := chain.Handle(context.Background(), NewRequest("1", "echo", Connection{}, nil),
		func(ctx context.Context, req *Request) (any, error) { return 42, nil })
	if err != nil || res != 42 {
		t.Errorf("Handle() = (%v, %v), want (42, nil)", res, err)
	}
}

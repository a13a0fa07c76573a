package cliapp

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type fakeLifecycle struct {
	startCh, stopCh chan error
	stopped         bool
}

func (f *fakeLifecycle) Start(ctx context.Context) error {
	select {
	case err := <-f.startCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeLifecycle) Stop(ctx context.Context) error {
	select {
	case err := <-f.stopCh:
		f.stopped = true
		return err
	case <-ctx.Done():
		f.stopped = true
		return ctx.Err()
	}
}

func (f *fakeLifecycle) Stopped() bool {
	return f.stopped
}

type harness struct {
	signalCh chan struct{}
	initCh   chan error
	appCh    chan *fakeLifecycle
	done     chan error
}

func startHarness() *harness {
	h := &harness{
		signalCh: make(chan struct{}, 2),
		initCh:   make(chan error),
		appCh:    make(chan *fakeLifecycle, 1),
		done:     make(chan error, 1),
	}
	blockOnSignal := func(ctx context.Context, signals ...os.Signal) {
		select {
		case <-ctx.Done():
		case <-h.signalCh:
		}
	}
	appFn := func(ctx *cli.Context, close context.CancelCauseFunc) (Lifecycle, error) {
		if err := <-h.initCh; err != nil {
			return nil, err
		}
		app := &fakeLifecycle{startCh: make(chan error, 1), stopCh: make(chan error, 1)}
		h.appCh <- app
		return app, nil
	}
	cliApp := cli.NewApp()
	cliApp.Action = lifecycleCmd(appFn, blockOnSignal)
	go func() {
		h.done <- cliApp.RunContext(context.Background(), []string{"test"})
	}()
	return h
}

func TestLifecycleCmd(t *testing.T) {
	t.Run("setup failure", func(t *testing.T) {
		h := startHarness()
		h.initCh <- errors.New("bad config")
		err := <-h.done
		require.ErrorContains(t, err, "failed to setup")
		require.ErrorContains(t, err, "bad config")
	})

	t.Run("start failure", func(t *testing.T) {
		h := startHarness()
		h.initCh <- nil
		app := <-h.appCh
		app.startCh <- errors.New("dial refused")
		err := <-h.done
		require.ErrorContains(t, err, "failed to start")
		require.ErrorContains(t, err, "dial refused")
	})

	t.Run("clean shutdown on interrupt", func(t *testing.T) {
		h := startHarness()
		h.initCh <- nil
		app := <-h.appCh
		app.startCh <- nil
		app.stopCh <- nil
		h.signalCh <- struct{}{}
		require.NoError(t, <-h.done)
		require.True(t, app.Stopped())
	})

	t.Run("stop failure", func(t *testing.T) {
		h := startHarness()
		h.initCh <- nil
		app := <-h.appCh
		app.startCh <- nil
		app.stopCh <- errors.New("flush failed")
		h.signalCh <- struct{}{}
		err := <-h.done
		require.ErrorContains(t, err, "failed to stop")
		require.ErrorContains(t, err, "flush failed")
	})
}

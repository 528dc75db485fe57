package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zurustar/blox/pkg/capability"
	"github.com/zurustar/blox/pkg/value"
)

// registerServices installs the services available to command line projects:
//
//	CallRPC clock now          -> seconds since the Unix epoch
//	CallRPC clock sleep secs   -> waits, then reports secs
//	Syscall getenv name        -> environment variable or ""
func registerServices(host *capability.Local) {
	host.RegisterRemote("clock", "now", clockNow)
	host.RegisterRemote("clock", "sleep", clockSleep)
	host.RegisterExtension("getenv", getenv)
}

func clockNow(ctx context.Context, args []value.Value) (value.Value, error) {
	return value.Number(float64(time.Now().UnixMilli()) / 1000), nil
}

func clockSleep(ctx context.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Void(), fmt.Errorf("sleep expects 1 argument, got %d", len(args))
	}
	secs, err := value.ToNumber(args[0])
	if err != nil {
		return value.Void(), err
	}

	timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return args[0], nil
	case <-ctx.Done():
		return value.Void(), ctx.Err()
	}
}

func getenv(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Void(), fmt.Errorf("getenv expects 1 argument, got %d", len(args))
	}
	name, err := value.ToText(args[0])
	if err != nil {
		return value.Void(), err
	}
	return value.Text(os.Getenv(name)), nil
}

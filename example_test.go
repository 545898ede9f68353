package goGuard_test

import (
	"context"
	"errors"
	"fmt"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/redis/go-redis/v9"
)

// ExampleNew builds an engine with shared Redis lockout.
func ExampleNew() {
	cfg := goGuard.DefaultConfig()
	cfg.Session.PrivateKey = []byte("replace-with-a-32-byte-or-longer-secret")

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithStore(goGuard.NewMemoryStore()).
		WithRedis(rdb).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_Login shows the errors a login handler distinguishes.
func ExampleEngine_Login() {
	var engine *goGuard.Engine
	res, err := engine.Login(context.Background(), "alice@example.com", "password")

	var locked *goGuard.LockedError
	switch {
	case err == nil:
		fmt.Println(res.Token)
	case errors.As(err, &locked):
		fmt.Println("retry in", locked.RemainingMinutes(), "minutes")
	case errors.Is(err, goGuard.ErrMFARequired):
		fmt.Println("ask for a code")
	default:
		fmt.Println(goGuard.StatusCode(err), goGuard.PublicMessage(err))
	}
}

// ExampleEngine_Authorize gates a write on the caller's subscription.
func ExampleEngine_Authorize() {
	var engine *goGuard.Engine
	p, err := engine.Authorize(context.Background(), "token", goGuard.OpWrite)
	if err != nil {
		fmt.Println(goGuard.StatusCode(err))
		return
	}
	fmt.Println(p.UserID, p.Subscription)
}

// ExampleEngine_MetricsSnapshot reads in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *goGuard.Engine
	snapshot := engine.MetricsSnapshot()
	fmt.Println(snapshot.Counters[goGuard.MetricLoginLocked])
}

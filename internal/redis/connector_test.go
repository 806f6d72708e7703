package redis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrSnakeDoc/folio/internal/logger"
)

func testOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		ConnectTimeout: 300 * time.Millisecond,
		RetryInterval:  10 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
		WarnThreshold:  2,
	}
}

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), testOptions(mr.Addr()), logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Errorf("Set() error = %v", err)
	}
}

func TestNewGivesUpAfterTimeout(t *testing.T) {
	// Reserve a port and close it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	start := time.Now()
	if _, err := New(context.Background(), testOptions(addr), logger.NewNop()); err == nil {
		t.Fatal("New() error = nil, want unavailable")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("New() took %v, want it bounded by ConnectTimeout", elapsed)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConnectOptions)
	}{
		{name: "empty addr", mutate: func(o *ConnectOptions) { o.Addr = "" }},
		{name: "zero connect timeout", mutate: func(o *ConnectOptions) { o.ConnectTimeout = 0 }},
		{name: "zero retry interval", mutate: func(o *ConnectOptions) { o.RetryInterval = 0 }},
		{name: "zero max wait", mutate: func(o *ConnectOptions) { o.MaxWait = 0 }},
		{name: "zero ping timeout", mutate: func(o *ConnectOptions) { o.PingTimeout = 0 }},
		{name: "negative warn threshold", mutate: func(o *ConnectOptions) { o.WarnThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions("127.0.0.1:6379")
			tt.mutate(&opts)
			if _, err := New(context.Background(), opts, logger.NewNop()); err == nil {
				t.Error("New() error = nil, want validation error")
			}
		})
	}
}

// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package control

import (
	"sync"
	"testing"
)

func TestMetricsRegistry_Basic(t *testing.T) {
	reg := NewMetricsRegistry()
	if !reg.Updated().IsZero() {
		t.Fatal("fresh registry reports an update")
	}
	reg.Set("c1.frames_sent", int64(42))
	reg.Set("c1.state", "Open")
	reg.Set("c2.frames_sent", int64(7))

	snap := reg.GetSnapshot()
	if snap["c1.frames_sent"] != int64(42) || snap["c1.state"] != "Open" {
		t.Fatalf("snapshot = %v", snap)
	}
	if reg.Updated().IsZero() {
		t.Fatal("Updated not advanced by Set")
	}

	// Snapshots are copies.
	snap["c1.state"] = "Closed"
	if reg.GetSnapshot()["c1.state"] != "Open" {
		t.Fatal("snapshot aliases the registry")
	}
}

func TestMetricsRegistry_PerConnection(t *testing.T) {
	reg := NewMetricsRegistry()
	reg.Set("c1.frames_sent", int64(1))
	reg.Set("c1.state", "Closed")
	reg.Set("c10.frames_sent", int64(3))

	got := reg.Connection("c1")
	if len(got) != 2 || got["frames_sent"] != int64(1) || got["state"] != "Closed" {
		t.Fatalf("Connection(c1) = %v", got)
	}

	if n := reg.Forget("c1"); n != 2 {
		t.Fatalf("Forget removed %d keys, want 2", n)
	}
	if n := reg.Forget("c1"); n != 0 {
		t.Fatalf("second Forget removed %d keys", n)
	}
	if snap := reg.GetSnapshot(); len(snap) != 1 || snap["c10.frames_sent"] != int64(3) {
		t.Fatalf("remaining = %v", snap)
	}
}

func TestMetricsRegistry_Concurrent(t *testing.T) {
	reg := NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Set("c.frames", int64(j))
				reg.GetSnapshot()
				reg.Connection("c")
			}
		}()
	}
	wg.Wait()
	if reg.GetSnapshot()["c.frames"] != int64(99) {
		t.Fatalf("last value = %v", reg.GetSnapshot()["c.frames"])
	}
}

func TestDebugProbes(t *testing.T) {
	dp := NewDebugProbes()
	RegisterRuntimeProbes(dp)
	depth := 3
	dp.RegisterProbe("conn.queue", func() any { return depth })

	state := dp.DumpState()
	if state["conn.queue"] != 3 {
		t.Fatalf("conn.queue = %v", state["conn.queue"])
	}
	if n, ok := state["runtime.cpus"].(int); !ok || n < 1 {
		t.Fatalf("runtime.cpus = %v", state["runtime.cpus"])
	}
	if _, ok := state["runtime.goroutines"]; !ok {
		t.Fatal("runtime.goroutines missing")
	}

	depth = 0
	if dp.DumpState()["conn.queue"] != 0 {
		t.Fatal("probe not re-evaluated")
	}
	dp.UnregisterProbe("conn.queue")
	dp.UnregisterProbe("unknown")
	if _, ok := dp.DumpState()["conn.queue"]; ok {
		t.Fatal("probe still registered")
	}
}

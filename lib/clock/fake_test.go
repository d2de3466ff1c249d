// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresAfter(t *testing.T) {
	t.Parallel()

	fake := NewFake()
	start := fake.Now()

	ch := fake.After(10 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(start.Add(10 * time.Second)) {
			t.Errorf("fired at %v, want %v", fired, start.Add(10*time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	t.Parallel()

	fake := NewFake()
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeSetBackwards(t *testing.T) {
	t.Parallel()

	fake := NewFake()
	ch := fake.After(time.Minute)
	fake.Set(fake.Now().Add(-time.Hour))
	select {
	case <-ch:
		t.Fatal("After fired when time moved backwards")
	default:
	}
}

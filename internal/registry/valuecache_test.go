// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"testing"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func TestValueCacheSeedPutGet(t *testing.T) {
	c := NewValueCache()

	c.Seed([]schema.TimestampedValue{
		{PointID: 1, Quality: schema.QualityUncertain},
		{PointID: 2, Quality: schema.QualityUncertain},
	})

	if _, ok := c.Get(3); ok {
		t.Fatal("Get(3) found a value that was never seeded or put")
	}
	v, ok := c.Get(1)
	if !ok || v.Quality != schema.QualityUncertain {
		t.Fatalf("Get(1) = %+v, %v; want the seeded placeholder", v, ok)
	}

	c.Put(schema.TimestampedValue{PointID: 1, Value: schema.NewFloatValue(42), Quality: schema.QualityGood})
	v, ok = c.Get(1)
	if !ok || v.Quality != schema.QualityGood {
		t.Fatalf("Put did not overwrite the seeded placeholder for point 1: %+v", v)
	}
}

func TestValueCacheEvictDropsOnlyNamedPoints(t *testing.T) {
	c := NewValueCache()
	c.Seed([]schema.TimestampedValue{
		{PointID: 1}, {PointID: 2}, {PointID: 3},
	})

	c.Evict([]int64{1, 3})

	if _, ok := c.Get(1); ok {
		t.Fatal("Get(1) still found a value after Evict")
	}
	if _, ok := c.Get(3); ok {
		t.Fatal("Get(3) still found a value after Evict")
	}
	if _, ok := c.Get(2); !ok {
		t.Fatal("Evict dropped point 2, which was not named")
	}
}

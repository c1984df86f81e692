// example_test.go: package-level usage example
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata_test

import (
	"fmt"
	"time"

	"github.com/strata-cache/strata"
)

type User struct {
	ID   int
	Name string
}

func Example() {
	cache, err := strata.New[string, User](strata.Config[string, User]{
		MaxSize:          10_000,
		EvictionPolicy:   strata.PolicyWindowTinyLFU,
		ExpireAfterWrite: time.Hour,
	})
	if err != nil {
		panic(err)
	}
	defer cache.Close()

	cache.Put("user:123", User{ID: 123, Name: "Alice"})

	if user, found := cache.GetIfPresent("user:123"); found {
		fmt.Printf("User: %s\n", user.Name)
	}

	// Output:
	// User: Alice
}

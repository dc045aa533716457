package controllers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"portalti-api/services"
)

func TestGetPresenceSingleInstance(t *testing.T) {
	const n = 16
	var wg sync.WaitGroup
	instances := make([]services.Presence, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instances[i] = getPresence()
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, instances[0], instances[i])
	}
}

package utils

import (
	"fmt"
	"math/rand"

	dockertest "github.com/ory/dockertest/v3"
)

var letterRunes = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func randResourceNameSuffix(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(b)
}

// newPool returns a pool only when a docker daemon answers, so callers can skip integration tests without one.
func newPool() (*dockertest.Pool, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, err
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("docker is not reachable: %w", err)
	}
	return pool, nil
}

// runContainer starts repository:tag on a fresh network. clean removes both.
func runContainer(pool *dockertest.Pool, prefix, repository, tag string, env []string) (*dockertest.Resource, func() error, error) {
	network, err := pool.CreateNetwork(fmt.Sprintf("test-network-%s", randResourceNameSuffix(10)))
	if err != nil {
		return nil, nil, err
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Name:       fmt.Sprintf("%s-%s", prefix, randResourceNameSuffix(10)),
		Repository: repository,
		Tag:        tag,
		Env:        env,
		Networks:   []*dockertest.Network{network},
	})
	if err != nil {
		_ = pool.RemoveNetwork(network)
		return nil, nil, err
	}
	// containers left behind by a crashed test run remove themselves
	_ = resource.Expire(600)

	clean := func() error {
		if err := pool.Purge(resource); err != nil {
			return fmt.Errorf("could not purge resource: %w", err)
		}
		if err := pool.RemoveNetwork(network); err != nil {
			return fmt.Errorf("could not remove network: %w", err)
		}
		return nil
	}
	return resource, clean, nil
}

package subscriberreg

import (
	"database/sql"
	"testing"

	"github.com/ignite/nuntius/internal/config"
	"github.com/ignite/nuntius/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_PostgresModelReturnsRepository(t *testing.T) {
	repo, err := Resolve("postgres", nil)
	require.NoError(t, err)
	assert.Implements(t, (*repository.SubscriberRepository)(nil), repo)
}

func TestResolve_UnknownModelErrors(t *testing.T) {
	_, err := Resolve(config.SubscriberModel("dynamo"), nil)
	assert.Error(t, err)
}

func TestRegister_AddsNewModel(t *testing.T) {
	called := false
	Register(config.SubscriberModel("fake"), func(db *sql.DB) repository.SubscriberRepository {
		called = true
		return nil
	})
	_, err := Resolve(config.SubscriberModel("fake"), nil)
	require.NoError(t, err)
	assert.True(t, called)
}

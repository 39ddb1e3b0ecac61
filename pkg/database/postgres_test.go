package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/scorecard-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "ro", Password: "pw", Name: "scorecard", SSLMode: "require"})

	assert.Equal(t, "host=db port=5433 user=ro password=pw dbname=scorecard sslmode=require application_name=scorecard-api", dsn)
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestUserValidatePassword(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	user := User{Username: "alice", PasswordHash: hash}
	assert.True(t, user.ValidatePassword("s3cret"))
	assert.False(t, user.ValidatePassword("S3cret"))
	assert.False(t, User{}.ValidatePassword(""))
}

func TestContentDigest(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContentDigest(nil))
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		ContentDigest([]byte("hello")))
	assert.NotEqual(t, ContentDigest([]byte("a")), ContentDigest([]byte("b")))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "users", User{}.TableName())
	assert.Equal(t, "analysis_results", AnalysisResult{}.TableName())
}

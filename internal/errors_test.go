package internal

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNotFound(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	err := notFound("book", id)
	assert.ErrorIs(t, err, errNotFound)
	assert.Contains(t, err.Error(), "book")
	assert.Contains(t, err.Error(), id.String())
}

func TestStatusErr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "upstream status 404 (Not Found)", statusErr(404).Error())
	assert.Equal(t, "upstream status 999 (unknown)", statusErr(999).Error())
}

func TestIsForeignKeyErr(t *testing.T) {
	t.Parallel()

	assert.True(t, isForeignKeyErr(errors.New("constraint failed: FOREIGN KEY constraint failed (787)")))
	assert.False(t, isForeignKeyErr(errors.New("UNIQUE constraint failed")))
	assert.False(t, isForeignKeyErr(nil))
}

package validate

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestPassword(t *testing.T) {
	require.True(t, Password("Secret123!"))
	require.False(t, Password("secret123!"))
	require.False(t, Password("SECRET123!"))
	require.False(t, Password("Secret1234"))
	require.False(t, Password("Sh0rt!"))
	require.False(t, Password("Averyveryveryverylongpassword123!!"))
}

func TestTags(t *testing.T) {
	v := New([]string{"Books", "Toys"})

	type req struct {
		Password string `validate:"required,password"`
		Category string `validate:"required,category"`
	}

	require.NoError(t, v.Struct(req{Password: "Secret123!", Category: "Books"}))

	err := v.Struct(req{Password: "weak", Category: "Cars"})
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	require.Equal(t, "password", verrs[0].Tag())
	require.Equal(t, "category", verrs[1].Tag())
}

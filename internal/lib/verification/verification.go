package verification

import (
	"context"
	"fmt"
	"net/url"

	"marketplace/internal/models"

	"github.com/google/uuid"
)

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// Link appends the owner id and plain token to base as query parameters.
func Link(base string, ownerID uuid.UUID, token string) (string, error) {
	const op = "verification.Link"

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	q := u.Query()
	q.Set("id", ownerID.String())
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// SendLink publishes a mail job carrying the link for purpose.
func SendLink(
	ctx context.Context,
	pub Publisher,
	purpose models.Purpose,
	base string,
	ownerID uuid.UUID,
	token, email string,
) error {
	const op = "verification.SendLink"

	link, err := Link(base, ownerID, token)
	if err != nil {
		return err
	}

	msg := models.Message{
		Email:   email,
		Link:    link,
		Purpose: purpose,
	}

	if err := pub.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

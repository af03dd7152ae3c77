package cardapi

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cardscan/internal/api/scanner"
	"cardscan/internal/entity"
	contextPkg "cardscan/pkg/context"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const DefaultTimeout = 30 * time.Second

// UploadError is a non-2xx answer from the card service.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("card service responded %d: %s", e.StatusCode, e.Body)
}

func (e *UploadError) Unwrap() error {
	return scanner.ErrCardAPIRejected
}

type IClient interface {
	UploadCardBack(ctx context.Context, gameID string, img entity.CardImage) (entity.UploadedCard, error)
	UploadCardFront(ctx context.Context, req entity.FrontUpload) (entity.UploadedCard, error)
}

type client struct {
	baseURL string
	timeout time.Duration
	log     *logrus.Logger
}

func New(baseURL string, timeout time.Duration, log *logrus.Logger) IClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		log:     log,
	}
}

// UploadCardBack creates a card back: POST /games/{gameId}/card-backs.
func (c *client) UploadCardBack(ctx context.Context, gameID string, img entity.CardImage) (entity.UploadedCard, error) {
	return c.post(ctx, c.gameURL(gameID, "card-backs"), img, nil)
}

// UploadCardFront creates a card: POST /games/{gameId}/cards. The category
// and card back fields are sent only when set.
func (c *client) UploadCardFront(ctx context.Context, req entity.FrontUpload) (entity.UploadedCard, error) {
	fields := map[string]string{"name": req.SuggestedName}
	if req.CategoryID != "" {
		fields["category_id"] = req.CategoryID
	}
	if req.CardBackID != "" {
		fields["card_back_id"] = req.CardBackID
	}
	return c.post(ctx, c.gameURL(req.GameID, "cards"), req.Image, fields)
}

func (c *client) gameURL(gameID, resource string) string {
	return fmt.Sprintf("%s/games/%s/%s", c.baseURL, url.PathEscape(gameID), resource)
}

func (c *client) post(ctx context.Context, target string, img entity.CardImage, fields map[string]string) (entity.UploadedCard, error) {
	if err := ctx.Err(); err != nil {
		return entity.UploadedCard{}, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	a := fiber.Post(target)
	a.Timeout(timeout)
	if token := contextPkg.GetAccessToken(ctx); token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	a.Set("X-Request-ID", contextPkg.GetRequestID(ctx))

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	for k, v := range fields {
		args.Set(k, v)
	}

	a.FileData(&fiber.FormFile{
		Fieldname: "image",
		Name:      img.Filename,
		Content:   img.Data,
	}).MultipartForm(args)

	start := time.Now()
	code, body, errs := a.Bytes()
	log := c.log.WithFields(logrus.Fields{
		"url":        target,
		"session_id": contextPkg.GetSessionID(ctx),
		"bytes":      img.Size(),
		"status":     code,
		"latency_ms": time.Since(start).Milliseconds(),
	})

	if len(errs) > 0 {
		err := errors.Join(errs...)
		log.WithError(err).Warn("Card upload request failed")
		return entity.UploadedCard{}, fmt.Errorf("%w: %w", scanner.ErrUploadFailed, err)
	}
	if code < 200 || code > 299 {
		log.Warn("Card service rejected upload")
		return entity.UploadedCard{}, &UploadError{StatusCode: code, Body: truncate(string(body), 256)}
	}

	card, err := decodeCard(body)
	if err != nil {
		log.WithError(err).Warn("Unreadable card service response")
		return entity.UploadedCard{}, fmt.Errorf("%w: %w", scanner.ErrUploadFailed, err)
	}

	log.WithField("card_id", card.ID).Debug("Card uploaded")
	return card, nil
}

type uploadResponse struct {
	entity.UploadedCard
	Data *entity.UploadedCard `json:"data"`
}

// decodeCard accepts the card either bare or wrapped in a data envelope.
func decodeCard(body []byte) (entity.UploadedCard, error) {
	var resp uploadResponse
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(body, &resp); err != nil {
		return entity.UploadedCard{}, err
	}

	card := resp.UploadedCard
	if resp.Data != nil {
		card = *resp.Data
	}
	if card.ID == "" {
		return entity.UploadedCard{}, errors.New("response carries no card id")
	}
	return card, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package entity

// CardImage is an encoded capture ready to be sent to the card service.
type CardImage struct {
	Data        []byte
	ContentType string
	Filename    string
	Width       int
	Height      int
}

func (c CardImage) Size() int {
	return len(c.Data)
}

type CardSide string

const (
	CardSideFront CardSide = "front"
	CardSideBack  CardSide = "back"
)

// FrontUpload carries the optional references a card front is created with.
// CategoryID and CardBackID are omitted from the request when empty.
type FrontUpload struct {
	GameID        string
	Image         CardImage
	SuggestedName string
	CategoryID    string
	CardBackID    string
}

type UploadedCard struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	GameID     string `json:"game_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
	CardBackID string `json:"card_back_id,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

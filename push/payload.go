package push

import (
	"github.com/BrandonHVX/heavy-status/pkg/news"
	"github.com/BrandonHVX/heavy-status/wordpress"
)

const (
	// Fallback strings when a post arrives without a title or excerpt.
	defaultHeading = "New Post on Heavy Status"
	defaultMessage = "Check out the latest news on Heavy Status!"

	// maxContentLength caps the notification body.
	maxContentLength = 200

	// broadcastSegment is the only delivery target: every push subscriber.
	broadcastSegment = "Subscribed Users"
)

// Payload is the write-only notification structure sent to the delivery
// service. The provider fills AppID before submission.
type Payload struct {
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	AppID            string            `json:"app_id"`
	TargetChannel    string            `json:"target_channel"`
	URL              string            `json:"url"`
	BigPicture       string            `json:"big_picture,omitempty"`
	ChromeWebImage   string            `json:"chrome_web_image,omitempty"`
	IncludedSegments []string          `json:"included_segments"`
}

// BuildPayload assembles a broadcast payload from raw post fields. Titles
// and excerpts arrive as WordPress HTML and are stripped here; an image, if
// present, is attached as both the big picture and the chrome web image.
func BuildPayload(title, excerpt, slug, imageURL, siteURL string) *Payload {
	heading := wordpress.StripHTML(title)
	if heading == "" {
		heading = defaultHeading
	}

	message := wordpress.Truncate(wordpress.StripHTML(excerpt), maxContentLength)
	if message == "" {
		message = defaultMessage
	}

	p := &Payload{
		TargetChannel:    "push",
		IncludedSegments: []string{broadcastSegment},
		Headings:         map[string]string{"en": heading},
		Contents:         map[string]string{"en": message},
		URL:              news.ArticleURL(siteURL, slug),
	}

	if imageURL != "" {
		p.BigPicture = imageURL
		p.ChromeWebImage = imageURL
	}

	return p
}

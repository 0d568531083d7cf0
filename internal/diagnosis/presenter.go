package diagnosis

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/jo-hoe/wheatscan/internal/classifier"
)

const (
	DefaultSearchBase = "https://www.google.com/search"

	apiFailurePrefix = "API request failed: "
	searchSuffix     = " wheat plant"
)

// View is everything the result screen renders for one outcome.
type View struct {
	Label       string `json:"label,omitempty"`
	Header      string `json:"header,omitempty"`
	Description string `json:"description,omitempty"`
	SearchURL   string `json:"searchUrl,omitempty"`
	Error       string `json:"error,omitempty"`
	Healthy     bool   `json:"healthy,omitempty"`
}

func (v View) Failed() bool {
	return v.Error != ""
}

// Lines splits the description into the lines the result screen shows.
func (v View) Lines() []string {
	if v.Description == "" {
		return nil
	}
	return strings.Split(v.Description, "\n")
}

type Presenter struct {
	searchBase string
}

func NewPresenter(searchBase string) *Presenter {
	if searchBase == "" {
		searchBase = DefaultSearchBase
	}
	return &Presenter{searchBase: searchBase}
}

// SearchURL builds the web search for "<label> wheat plant". An empty string
// means the action is not offered.
func (p *Presenter) SearchURL(label string) string {
	u, err := url.Parse(p.searchBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		slog.Warn("search base url is invalid; hiding search action", "search_base", p.searchBase, "error", err)
		return ""
	}
	q := u.Query()
	q.Set("q", strings.ToLower(label)+searchSuffix)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Presenter) Present(result classifier.Result) View {
	if !result.OK() {
		return Failure(result)
	}
	label := strings.ToLower(result.Label)
	if !Known(label) {
		slog.Warn("classifier returned a label without description", "label", label)
	}
	return View{
		Label:       label,
		Header:      Header(label),
		Description: Describe(label),
		SearchURL:   p.SearchURL(label),
		Healthy:     label == HealthyLabel,
	}
}

// Failure renders a failed upload. Classifier errors carry a fixed prefix;
// transport messages are already phrased for the user.
func Failure(result classifier.Result) View {
	if result.Kind == classifier.FailureAPI {
		return View{Error: apiFailurePrefix + result.Message}
	}
	return View{Error: result.Message}
}

package menus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"mensabot/internal/domain"
	"mensabot/pkg/logx"
)

// Config points the client at the cookpit API.
type Config struct {
	FacilitiesURL string
	MenusURL      string
	Timeout       time.Duration
}

const (
	DefaultFacilitiesURL = "https://idapps.ethz.ch/cookpit-pub-services/v1/facilities"
	DefaultMenusURL      = "https://idapps.ethz.ch/cookpit-pub-services/v1/weeklyrotas"
)

// Client fetches facilities and weekly rotas. It is stateless and safe
// for concurrent use.
type Client struct {
	http          *http.Client
	facilitiesURL string
	menusURL      string
	log           logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if cfg.FacilitiesURL == "" {
		cfg.FacilitiesURL = DefaultFacilitiesURL
	}
	if cfg.MenusURL == "" {
		cfg.MenusURL = DefaultMenusURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		facilitiesURL: cfg.FacilitiesURL,
		menusURL:      cfg.MenusURL,
		log:           log,
	}
}

type facilitiesResponse struct {
	Facilities []struct {
		Name string `json:"facility-name"`
		ID   int64  `json:"facility-id"`
	} `json:"facility-array"`
}

type weeklyRotaResponse struct {
	Rotas []weeklyRota `json:"weekly-rota-array"`
}

type weeklyRota struct {
	FacilityID int64     `json:"facility-id"`
	Days       []rotaDay `json:"day-of-week-array"`
}

type rotaDay struct {
	OpeningHours []openingHour `json:"opening-hour-array"`
}

type openingHour struct {
	From      string     `json:"time-from"`
	To        string     `json:"time-to"`
	MealTimes []mealTime `json:"meal-time-array"`
}

type mealTime struct {
	Name  string     `json:"name"`
	From  string     `json:"time-from"`
	To    string     `json:"time-to"`
	Lines []mealLine `json:"line-array"`
}

type mealLine struct {
	Name string      `json:"name"`
	Meal *mealDetail `json:"meal"`
}

type mealDetail struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	ImageURL    string           `json:"image-url"`
	Prices      []mealPriceEntry `json:"meal-price-array"`
}

type mealPriceEntry struct {
	Price         json.Number `json:"price"`
	CustomerGroup string      `json:"customer-group-desc-short"`
}

// Facilities lists all canteens in the given menu language.
func (c *Client) Facilities(ctx context.Context, lang string) ([]Facility, error) {
	var resp facilitiesResponse
	params := url.Values{"lang": {lang}}
	if err := c.getJSON(ctx, c.facilitiesURL, params, &resp); err != nil {
		return nil, err
	}
	out := make([]Facility, 0, len(resp.Facilities))
	for _, f := range resp.Facilities {
		out = append(out, Facility{Name: f.Name, ID: f.ID})
	}
	return out, nil
}

// Menus fetches today's lunch menus for the user. filter overrides the
// user's stored facility filter; "all" disables filtering.
func (c *Client) Menus(ctx context.Context, info domain.UserInfo, filter string, now time.Time) (Menus, error) {
	lang := info.Locale
	facilities, err := c.Facilities(ctx, lang)
	if err != nil {
		return nil, err
	}

	today := now.In(info.Location())
	params := url.Values{
		"lang":         {lang},
		"valid-after":  {today.Format(time.DateOnly)},
		"valid-before": {today.AddDate(0, 0, 1).Format(time.DateOnly)},
	}
	var rota weeklyRotaResponse
	if err := c.getJSON(ctx, c.menusURL, params, &rota); err != nil {
		return nil, err
	}

	if filter == "" {
		filter = info.Facilities
	}
	if filter == "all" {
		filter = ""
	}
	if filter != "" {
		facilities = FilterFacilities(facilities, filter)
	}
	return parseMenus(rota, facilities, info.Price, today), nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("menus: %s returned %s", rawURL, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

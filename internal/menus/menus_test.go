package menus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mensabot/internal/domain"
	"mensabot/pkg/logx"
)

const facilitiesJSON = `{
  "facility-array": [
    {"facility-id": 9, "facility-name": "Clausiusbar"},
    {"facility-id": 3, "facility-name": "Polymensa"},
    {"facility-id": 21, "facility-name": "Food Market"}
  ]
}`

// Wednesday has a lunch serving at Clausiusbar, Polymensa is closed and
// Food Market publishes no rota at all.
const rotaJSON = `{
  "weekly-rota-array": [
    {
      "facility-id": 9,
      "day-of-week-array": [
        {}, {},
        {
          "opening-hour-array": [
            {
              "time-from": "08:00", "time-to": "16:00",
              "meal-time-array": [
                {
                  "name": "Lunch", "time-from": "11:00", "time-to": "13:30",
                  "line-array": [
                    {
                      "name": "Garden",
                      "meal": {
                        "name": "Penne al Forno",
                        "description": "Baked pasta with tomato",
                        "image-url": "https://img.example.org/penne.jpg",
                        "meal-price-array": [
                          {"price": "7.5", "customer-group-desc-short": "INT"},
                          {"price": "12.5", "customer-group-desc-short": "EXT"}
                        ]
                      }
                    },
                    {
                      "name": "Street",
                      "meal": {
                        "name": "Ramen",
                        "description": "Miso broth",
                        "meal-price-array": [
                          {"price": 9, "customer-group-desc-short": "INT"}
                        ]
                      }
                    }
                  ]
                },
                {"name": "Dinner", "time-from": "17:00", "time-to": "19:30"}
              ]
            }
          ]
        },
        {}, {}, {}, {}
      ]
    },
    {
      "facility-id": 3,
      "day-of-week-array": [{}, {}, {}, {}, {}, {}, {}]
    }
  ]
}`

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/facilities", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "en", r.URL.Query().Get("lang"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(facilitiesJSON))
	})
	mux.HandleFunc("/weeklyrotas", func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.URL.Query().Get("valid-after"))
		require.NotEmpty(t, r.URL.Query().Get("valid-before"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(rotaJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClient(t *testing.T) *Client {
	srv := testServer(t)
	return NewClient(Config{
		FacilitiesURL: srv.URL + "/facilities",
		MenusURL:      srv.URL + "/weeklyrotas",
	}, logx.Nop())
}

var wednesday = time.Date(2026, 9, 2, 11, 0, 0, 0, time.UTC)

func TestMenusOfTheDay(t *testing.T) {
	c := testClient(t)
	info := domain.UserInfo{Locale: "en", Timezone: "UTC", Price: "int"}

	m, err := c.Menus(context.Background(), info, "all", wednesday)
	require.NoError(t, err)
	require.Len(t, m, 3)

	claus := m["Clausiusbar"]
	require.NotNil(t, claus)
	require.Equal(t, "11:00 - 13:30", claus.Time)
	require.Equal(t, "08:00 - 16:00", claus.Open)
	require.Len(t, claus.Meals, 2)
	require.Equal(t, "Penne al Forno", claus.Meals[0].Name)
	require.Equal(t, "7.50", claus.Meals[0].Price)
	require.Equal(t, "https://img.example.org/penne.jpg"+clientID, claus.Meals[0].Image)
	require.Equal(t, "9.00", claus.Meals[1].Price)
	require.Empty(t, claus.Meals[1].Image)

	require.Nil(t, m["Polymensa"])
	require.Nil(t, m["Food Market"])
}

func TestMenusFacilityFilter(t *testing.T) {
	c := testClient(t)
	info := domain.UserInfo{Locale: "en", Timezone: "UTC", Price: "int", Facilities: "clausius"}

	// Empty filter falls back to the user's stored facilities.
	m, err := c.Menus(context.Background(), info, "", wednesday)
	require.NoError(t, err)
	require.Len(t, m, 1)
	require.Contains(t, m, "Clausiusbar")

	// An explicit filter overrides it.
	m, err = c.Menus(context.Background(), info, "polymensa, market", wednesday)
	require.NoError(t, err)
	require.Len(t, m, 2)
	require.Contains(t, m, "Polymensa")
	require.Contains(t, m, "Food Market")
}

func TestMenusPriceOff(t *testing.T) {
	c := testClient(t)
	info := domain.UserInfo{Locale: "en", Timezone: "UTC", Price: "off"}

	m, err := c.Menus(context.Background(), info, "clausius", wednesday)
	require.NoError(t, err)
	for _, meal := range m["Clausiusbar"].Meals {
		require.Empty(t, meal.Price)
	}
}

func TestMarkdownMenus(t *testing.T) {
	t.Parallel()
	menus := Menus{
		"Clausiusbar": {
			Open: "08:00 - 16:00",
			Time: "11:00 - 13:30",
			Meals: []Meal{
				{Station: "Garden", Name: "Penne", Description: "Baked pasta", Price: "7.50", Image: "https://img/p.jpg"},
			},
		},
		"Polymensa": nil,
	}
	md := MarkdownMenus(menus)

	require.Contains(t, md, "#### clausiusbar (11:00 - 13:30)")
	require.Contains(t, md, "- **garden** [penne](https://img/p.jpg) [7.50]: baked pasta")
	require.Contains(t, md, "#### polymensa (no menu)")
	// Sections come out sorted by canteen name.
	require.Less(t, strings.Index(md, "clausiusbar"), strings.Index(md, "polymensa"))
}

func TestMarkdownFacilities(t *testing.T) {
	t.Parallel()
	md := MarkdownFacilities([]Facility{{Name: "Polymensa"}, {Name: "Clausiusbar"}})
	require.Equal(t, "- Clausiusbar\n- Polymensa", md)
}

func TestFilterFacilities(t *testing.T) {
	t.Parallel()
	all := []Facility{{Name: "Clausiusbar"}, {Name: "Polymensa"}, {Name: "Food Market"}}

	require.Len(t, FilterFacilities(all, ""), 3)
	require.Len(t, FilterFacilities(all, "clausius"), 1)
	require.Len(t, FilterFacilities(all, "clausius, market"), 2)
	require.Len(t, FilterFacilities(all, "clausius\nmarket"), 2)
	require.Empty(t, FilterFacilities(all, "nope"))
}

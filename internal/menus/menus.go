// Package menus fetches and renders the ETH Zurich canteen lunch menus
// from the public cookpit API.
package menus

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// clientID must be appended to meal image URLs or the CDN rejects the
// request.
const clientID = "?client-id=ethz-wcms"

// mealTimeNames selects the midday serving from the opening hours.
var mealTimeNames = []string{"lunch", "mittag"}

// Facility is one canteen.
type Facility struct {
	Name string
	ID   int64
}

// Meal is a single dish at a station.
type Meal struct {
	Station     string
	Name        string
	Description string
	Price       string // formatted, empty when unknown or disabled
	Image       string // image URL with client id, empty when none
}

// FacilityMenu is the lunch offering of one canteen for one day. A nil
// entry in Menus means the canteen publishes no rota; empty Meals means
// it is open but without a lunch menu.
type FacilityMenu struct {
	Open  string
	Time  string
	Meals []Meal
}

// Menus maps facility name to its menu of the day.
type Menus map[string]*FacilityMenu

var filterSplit = regexp.MustCompile(`\s?,\s?|\s?\n+\s?`)

// FilterFacilities keeps facilities whose name contains any of the
// comma or newline separated filter terms, case-insensitively.
func FilterFacilities(facilities []Facility, filter string) []Facility {
	var terms []string
	for _, t := range filterSplit.Split(filter, -1) {
		if t != "" {
			terms = append(terms, strings.ToLower(t))
		}
	}
	if len(terms) == 0 {
		return facilities
	}
	var out []Facility
	for _, f := range facilities {
		name := strings.ToLower(f.Name)
		for _, t := range terms {
			if strings.Contains(name, t) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// MarkdownFacilities renders the facility list as markdown bullets.
func MarkdownFacilities(facilities []Facility) string {
	names := make([]string, 0, len(facilities))
	for _, f := range facilities {
		names = append(names, "- "+f.Name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

// parseMenus extracts the lunch menus for the given facilities from a
// weekly rota. customer selects the price column; "off" hides prices.
func parseMenus(rota weeklyRotaResponse, facilities []Facility, customer string, day time.Time) Menus {
	// The rota's day-of-week array starts at Monday.
	weekday := (int(day.Weekday()) + 6) % 7

	out := make(Menus, len(facilities))
	for _, facility := range facilities {
		out[facility.Name] = facilityMenu(rota, facility.ID, customer, weekday)
	}
	return out
}

func facilityMenu(rota weeklyRotaResponse, facilityID int64, customer string, weekday int) *FacilityMenu {
	var menu *weeklyRota
	for i := range rota.Rotas {
		if rota.Rotas[i].FacilityID == facilityID {
			menu = &rota.Rotas[i]
			break
		}
	}
	if menu == nil || weekday >= len(menu.Days) {
		return nil
	}

	day := menu.Days[weekday]
	if len(day.OpeningHours) == 0 {
		return nil
	}
	oh := day.OpeningHours[0]
	if len(oh.MealTimes) == 0 {
		return nil
	}

	var result *FacilityMenu
	for _, mt := range oh.MealTimes {
		if !isLunch(mt.Name) {
			continue
		}
		fm := &FacilityMenu{
			Open: oh.From + " - " + oh.To,
			Time: mt.From + " - " + mt.To,
		}
		for _, line := range mt.Lines {
			if line.Meal == nil {
				continue
			}
			fm.Meals = append(fm.Meals, Meal{
				Station:     strings.TrimSpace(line.Name),
				Name:        strings.TrimSpace(line.Meal.Name),
				Description: strings.TrimSpace(line.Meal.Description),
				Price:       mealPrice(line.Meal.Prices, customer),
				Image:       imageLink(line.Meal.ImageURL),
			})
		}
		result = fm
	}
	return result
}

func isLunch(mealTime string) bool {
	mealTime = strings.ToLower(mealTime)
	for _, n := range mealTimeNames {
		if strings.Contains(mealTime, n) {
			return true
		}
	}
	return false
}

func mealPrice(prices []mealPriceEntry, customer string) string {
	if customer == "off" {
		return ""
	}
	for _, p := range prices {
		if !strings.Contains(strings.ToLower(p.CustomerGroup), customer) {
			continue
		}
		if v, err := strconv.ParseFloat(p.Price.String(), 64); err == nil {
			return fmt.Sprintf("%.2f", v)
		}
	}
	return ""
}

func imageLink(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	return url + clientID
}

// MarkdownMenus renders the menus of the day, one section per canteen
// sorted by name.
func MarkdownMenus(menus Menus) string {
	names := make([]string, 0, len(menus))
	for name := range menus {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		menu := menus[name]
		header := "no menu"
		if menu != nil && len(menu.Meals) > 0 {
			header = menu.Time
		}
		fmt.Fprintf(&b, "#### %s (%s)\n", strings.ToLower(name), header)
		if menu == nil {
			continue
		}

		meals := append([]Meal(nil), menu.Meals...)
		sort.Slice(meals, func(i, j int) bool { return meals[i].Station < meals[j].Station })
		for _, m := range meals {
			b.WriteString("- ")
			fmt.Fprintf(&b, "**%s** ", strings.ToLower(m.Station))
			if m.Image != "" {
				fmt.Fprintf(&b, "[%s](%s)", strings.ToLower(m.Name), m.Image)
			} else {
				b.WriteString(strings.ToLower(m.Name))
			}
			if m.Price != "" {
				fmt.Fprintf(&b, " [%s]", m.Price)
			}
			fmt.Fprintf(&b, ": %s\n", strings.ToLower(m.Description))
		}
	}
	return b.String()
}

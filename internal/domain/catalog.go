package domain

type Purpose string

const (
	PurposeYouTube     Purpose = "YouTube"
	PurposePlanner     Purpose = "Planner"
	PurposeSmartCourse Purpose = "Smart Course"
	PurposeLive        Purpose = "Live"
)

// DefaultPurpose is assumed for rows that carry no purpose at all.
const DefaultPurpose = PurposeYouTube

func Purposes() []Purpose {
	return []Purpose{PurposeYouTube, PurposePlanner, PurposeSmartCourse, PurposeLive}
}

func (p Purpose) Valid() bool {
	switch p {
	case PurposeYouTube, PurposePlanner, PurposeSmartCourse, PurposeLive:
		return true
	default:
		return false
	}
}

type Studio struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var studios = []Studio{
	{ID: "studio-1", Name: "Studio 1"},
	{ID: "studio-2", Name: "Studio 2"},
	{ID: "studio-3", Name: "Studio 3"},
	{ID: "studio-4", Name: "Studio 4"},
	{ID: "golden-studio", Name: "312 Golden Studio"},
	{ID: "sargasan-studio-1", Name: "Sargasan Studio 1"},
	{ID: "sargasan-studio-2", Name: "Sargasan Studio 2"},
}

// Studios returns the bookable studios in display order.
func Studios() []Studio {
	out := make([]Studio, len(studios))
	copy(out, studios)
	return out
}

func LookupStudio(id string) (Studio, bool) {
	for _, s := range studios {
		if s.ID == id {
			return s, true
		}
	}
	return Studio{}, false
}

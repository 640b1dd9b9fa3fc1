package models

type Service struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Duration int64  `yaml:"duration" json:"duration"` // minutes
	Price    string `yaml:"price" json:"price"`       // preformatted, e.g. "$49.99"
}

// DefaultServices is the fixed detailing catalog used when no catalog file
// is configured.
func DefaultServices() []Service {
	return []Service{
		{ID: "basic", Name: "Basic Wash", Duration: 60, Price: "$49.99"},
		{ID: "premium", Name: "Premium Detail", Duration: 120, Price: "$99.99"},
		{ID: "interior", Name: "Interior Deep Clean", Duration: 90, Price: "$79.99"},
		{ID: "exterior", Name: "Exterior Polish", Duration: 90, Price: "$79.99"},
		{ID: "ceramic", Name: "Ceramic Coating", Duration: 180, Price: "$249.99"},
	}
}

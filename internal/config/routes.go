package config

// RouteConfig declares one statically generated page.
type RouteConfig struct {
	Path     string `yaml:"path"`
	Template string `yaml:"template"`
	// Critical routes fail the overall build when they cannot be produced.
	Critical bool             `yaml:"critical"`
	Page     *PageQueryConfig `yaml:"page,omitempty"`
	Queries  []QueryConfig    `yaml:"queries,omitempty"`
	Fallback FallbackConfig   `yaml:"fallback,omitempty"`
	// RequireHero turns a hero image derivation failure into a route failure.
	RequireHero bool `yaml:"require_hero,omitempty"`
}

// PageQueryConfig selects the page entry backing a route.
type PageQueryConfig struct {
	Slug      string `yaml:"slug"`
	Mandatory bool   `yaml:"mandatory"`
}

// QueryConfig selects one collection of entries rendered on a route.
type QueryConfig struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Slug      string `yaml:"slug,omitempty"`
	Mandatory bool   `yaml:"mandatory"`
	OrderBy   string `yaml:"order_by,omitempty"`
}

// FallbackConfig is the static content used when the page entry is absent or partial.
type FallbackConfig struct {
	Title    string `yaml:"title,omitempty"`
	SEOTitle string `yaml:"seo_title,omitempty"`
	Intro    string `yaml:"intro,omitempty"`
}

// Template names understood by the renderer.
const (
	TemplateHome     = "home"
	TemplateAbout    = "about"
	TemplateServices = "services"
	TemplateContact  = "contact"
)

// DefaultRoutes returns the four routes of the marketing site.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{
			Path:     "/",
			Template: TemplateHome,
			Critical: true,
			Page:     &PageQueryConfig{Slug: "home"},
			Queries: []QueryConfig{
				{Name: "services", Kind: "service", OrderBy: "order"},
				{Name: "testimonials", Kind: "testimonial", OrderBy: "order"},
			},
			Fallback: FallbackConfig{
				Title:    "Transform Your Business with Modern Technology Solutions",
				SEOTitle: "Home | Technology Consulting",
				Intro: "Empower your business with cutting-edge technology solutions. We help small and medium-sized " +
					"businesses leverage the power of modern tech to drive growth, increase efficiency, and stay ahead of the competition.",
			},
		},
		{
			Path:     "/about",
			Template: TemplateAbout,
			Critical: true,
			Page:     &PageQueryConfig{Slug: "about"},
			Queries: []QueryConfig{
				{Name: "team", Kind: "teamMember", OrderBy: "order"},
			},
			Fallback: FallbackConfig{
				Title:    "About Us",
				SEOTitle: "About Us | Technology Consulting",
				Intro:    "We're a team of experienced technology consultants dedicated to helping small businesses thrive in the digital age.",
			},
		},
		{
			Path:     "/services",
			Template: TemplateServices,
			Critical: true,
			Page:     &PageQueryConfig{Slug: "services"},
			Queries: []QueryConfig{
				{Name: "services", Kind: "service", Mandatory: true, OrderBy: "order"},
			},
			Fallback: FallbackConfig{
				Title:    "Our Services",
				SEOTitle: "Our Services | Technology Consulting",
				Intro:    "Comprehensive technology consulting services to help your business grow",
			},
		},
		{
			Path:     "/contact",
			Template: TemplateContact,
			Page:     &PageQueryConfig{Slug: "contact"},
			Fallback: FallbackConfig{
				Title:    "Contact Us",
				SEOTitle: "Contact Us | Technology Consulting",
				Intro:    "Get in touch",
			},
		},
	}
}

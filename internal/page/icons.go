package page

// Service icons. The set is closed; unknown slugs get DefaultIcon.
const (
	IconComputerDesktop = "computer-desktop"
	IconCloudArrowUp    = "cloud-arrow-up"
	IconCog             = "cog"
	IconChartBar        = "chart-bar"

	DefaultIcon = IconCog
)

var serviceIcons = map[string]string{
	"technology-strategy": IconComputerDesktop,
	"cloud-services":      IconCloudArrowUp,
	"implementation":      IconCog,
	"analytics":           IconChartBar,
}

// IconFor returns the icon for a service slug.
func IconFor(slug string) string {
	if icon, ok := serviceIcons[slug]; ok {
		return icon
	}
	return DefaultIcon
}

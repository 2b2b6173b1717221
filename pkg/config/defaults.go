package config

// Default classifier rules. Order is the tie-break: first hit wins.
var defaultCategories = []CategoryRule{
	{Name: "homepage", Patterns: []string{"home", "index"}, MatchRoot: true},
	{Name: "missions", Patterns: []string{
		"mission", "satellite", "spacecraft",
		"insat", "kalpana",
		"oceansat", "scatsat", "altimeter", "scatterometer",
		"resourcesat", "cartosat", "irs-",
		"risat", "radar", "sar",
		"megha", "tropiques", "saral", "climate",
		"astrosat", "chandrayaan", "mars", "aditya", "mangalyaan",
		"introduction", "objectives", "payloads", "references",
	}},
	{Name: "data_products", Patterns: []string{"product", "data", "catalog", "archive", "level", "download", "browse"}},
	{Name: "services", Patterns: []string{"service", "access", "order", "api", "distribution"}},
	{Name: "tools", Patterns: []string{"tool", "live", "portal", "visuali", "interactive"}},
	{Name: "forecasts", Patterns: []string{"forecast", "nowcast", "weather", "cyclone", "monsoon", "prediction"}},
	{Name: "documentation", Patterns: []string{"help", "doc", "manual", "guide", "faq", "tutorial"}},
	{Name: "galleries", Patterns: []string{"gallery", "image", "animation", "video"}},
	{Name: "research", Patterns: []string{"research", "publication", "paper", "study"}},
	{Name: "news", Patterns: []string{"news", "event", "announcement", "update"}},
}

var defaultBlockPatterns = []string{
	"javascript:", "mailto:", "logout", "login", "signup",
	".pdf", ".doc", ".xls", ".zip", ".jar", "print", "download",
}

var defaultOtherTiers = OtherTiersConfig{
	Important: []string{"about", "contact", "help", "support", "faq", "download", "access"},
	Data:      []string{"data", "product", "catalog", "search", "browse"},
}

var defaultPriorityCaps = []CategoryCap{
	{Name: "homepage", Cap: 20},
	{Name: "missions", Cap: 50},
	{Name: "data_products", Cap: 50},
	{Name: "services", Cap: 35},
	{Name: "tools", Cap: 35},
	{Name: "forecasts", Cap: 35},
	{Name: "documentation", Cap: 20},
}

var defaultSecondaryCaps = []CategoryCap{
	{Name: "galleries", Cap: 25},
	{Name: "research", Cap: 25},
	{Name: "news", Cap: 25},
}

var defaultSuffixes = []string{
	"", "-introduction", "-objectives", "-payloads",
	"-spacecraft", "-references", "-mission", "-products",
}

var defaultSeedLinkPatterns = []string{
	"mission", "satellite", "spacecraft", "payload", "instrument", "sensor",
	"insat", "kalpana", "oceansat", "scatsat", "altimeter", "scatterometer",
	"resourcesat", "cartosat", "irs-", "hyperspectral",
	"risat", "radar", "sar", "megha", "tropiques", "saral", "climate", "atmospheric",
	"astrosat", "chandrayaan", "mars", "aditya", "mangalyaan",
	"introduction", "objectives", "payloads", "references",
	"orbit", "applications", "algorithms", "validation", "calibration",
	"data-product", "level-", "catalog", "archive", "browse", "product", "metadata",
}

func cloneCategories(in []CategoryRule) []CategoryRule {
	out := make([]CategoryRule, len(in))
	for i, r := range in {
		out[i] = CategoryRule{Name: r.Name, Patterns: append([]string(nil), r.Patterns...), MatchRoot: r.MatchRoot}
	}
	return out
}

package kometa

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/alexhritac/jellyfin-collection/internal/collection"
	"github.com/alexhritac/jellyfin-collection/internal/schedule"
)

// Library is one configured library with its collection specs, in the
// order the config declares them.
type Library struct {
	Name  string
	Specs []collection.Spec
}

// sourceKeys are the builder directives recognized in a collection block.
// Directive order in the YAML decides fetch order, so these are picked up
// by walking the mapping nodes rather than decoding into a map.
var sourceKeys = map[string]collection.SourceType{
	"tmdb_trending_weekly": collection.SourceTMDBTrendingWeekly,
	"tmdb_trending_daily":  collection.SourceTMDBTrendingDaily,
	"tmdb_popular":         collection.SourceTMDBPopular,
	"tmdb_discover":        collection.SourceTMDBDiscover,
	"tmdb_list":            collection.SourceTMDBList,
	"imdb_chart":           collection.SourceIMDBChart,
	"imdb_list":            collection.SourceIMDBList,
	"trakt_trending":       collection.SourceTraktTrending,
	"trakt_popular":        collection.SourceTraktPopular,
	"trakt_chart":          collection.SourceTraktChart,
}

var tmdbListURLPattern = regexp.MustCompile(`/list/(\d+)`)

// template holds the defaults a collection can inherit.
type template struct {
	syncMode   collection.SyncMode
	filter     collection.Filter
	cadence    schedule.Cadence
	hasCadence bool
}

// Parser reads Kometa-style YAML configuration: a main config naming
// libraries and their collection files, and per-library collection files.
type Parser struct {
	configPath string
	templates  map[string]template
	logger     zerolog.Logger
}

// NewParser creates a parser. configPath may be the main config file or
// the directory holding config.yml.
func NewParser(configPath string, logger zerolog.Logger) *Parser {
	return &Parser{
		configPath: configPath,
		templates:  make(map[string]template),
		logger:     logger.With().Str("component", "kometa").Logger(),
	}
}

// Load parses the main config and every referenced collection file,
// returning libraries in declaration order.
func (p *Parser) Load() ([]Library, error) {
	configFile := p.configPath
	if info, err := os.Stat(configFile); err == nil && info.IsDir() {
		configFile = filepath.Join(configFile, "config.yml")
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	baseDir := filepath.Dir(configFile)
	librariesNode := mappingValue(&root, "libraries")
	if librariesNode == nil {
		return nil, fmt.Errorf("config has no libraries section")
	}

	var libraries []Library
	for i := 0; i+1 < len(librariesNode.Content); i += 2 {
		name := librariesNode.Content[i].Value
		var libConfig struct {
			CollectionFiles []yaml.Node `yaml:"collection_files"`
		}
		if err := librariesNode.Content[i+1].Decode(&libConfig); err != nil {
			return nil, fmt.Errorf("failed to decode library %q: %w", name, err)
		}

		lib := Library{Name: name}
		for _, fileNode := range libConfig.CollectionFiles {
			path := collectionFilePath(fileNode)
			if path == "" {
				continue
			}
			specs, err := p.ParseCollectionFile(filepath.Join(baseDir, path))
			if err != nil {
				return nil, fmt.Errorf("library %q: %w", name, err)
			}
			lib.Specs = append(lib.Specs, specs...)
		}

		libraries = append(libraries, lib)
		p.logger.Info().Str("library", name).Int("collections", len(lib.Specs)).Msg("library parsed")
	}

	return libraries, nil
}

// collectionFilePath accepts both `- file: path` entries and bare strings.
// A leading config/ segment is dropped: Kometa configs address files
// relative to the mounted config root.
func collectionFilePath(node yaml.Node) string {
	var entry struct {
		File string `yaml:"file"`
	}
	if err := node.Decode(&entry); err == nil && entry.File != "" {
		return strings.TrimPrefix(entry.File, "config/")
	}

	var path string
	if err := node.Decode(&path); err == nil {
		return strings.TrimPrefix(path, "config/")
	}
	return ""
}

// ParseCollectionFile parses one collection YAML file.
func (p *Parser) ParseCollectionFile(path string) ([]collection.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection file: %w", err)
	}
	return p.Parse(data)
}

// Parse parses collection YAML content.
func (p *Parser) Parse(data []byte) ([]collection.Spec, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse collection file: %w", err)
	}

	if templatesNode := mappingValue(&root, "templates"); templatesNode != nil {
		var raw map[string]map[string]any
		if err := templatesNode.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode templates: %w", err)
		}
		for name, fields := range raw {
			p.templates[name] = parseTemplate(fields)
		}
	}

	collectionsNode := mappingValue(&root, "collections")
	if collectionsNode == nil {
		return nil, nil
	}

	var specs []collection.Spec
	for i := 0; i+1 < len(collectionsNode.Content); i += 2 {
		name := collectionsNode.Content[i].Value
		spec, err := p.parseCollection(name, collectionsNode.Content[i+1])
		if err != nil {
			p.logger.Error().Err(err).Str("collection", name).Msg("failed to parse collection")
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseTemplate(fields map[string]any) template {
	t := template{
		syncMode: collection.ParseSyncMode(asString(fields["sync_mode"])),
		cadence:  schedule.Cadence{Type: schedule.Never},
	}
	if filters, ok := fields["filters"].(map[string]any); ok {
		t.filter = parseFilter(filters, collection.Filter{})
	}
	if raw := asString(fields["schedule"]); raw != "" {
		t.cadence = schedule.Parse(raw)
		t.hasCadence = true
	}
	return t
}

func (p *Parser) parseCollection(name string, node *yaml.Node) (collection.Spec, error) {
	var fields map[string]any
	if err := node.Decode(&fields); err != nil {
		return collection.Spec{}, fmt.Errorf("failed to decode collection body: %w", err)
	}

	spec := collection.Spec{
		Name:         name,
		Summary:      asString(fields["summary"]),
		SortTitle:    asString(fields["sort_title"]),
		Poster:       asString(fields["poster"]),
		Order:        collection.ParseOrder(asString(fields["collection_order"])),
		SyncMode:     collection.SyncModeSync,
		MinimumItems: 1,
		Cadence:      schedule.Cadence{Type: schedule.Daily},
	}

	// Template defaults first, collection values override.
	var tpl *template
	spec.Template = templateName(fields["template"])
	if spec.Template != "" {
		if t, ok := p.templates[spec.Template]; ok {
			tpl = &t
			spec.SyncMode = t.syncMode
			spec.Filter = t.filter
			// A template pins the cadence: inheriting one without a
			// schedule means the collection only runs manually.
			spec.Cadence = schedule.Cadence{Type: schedule.Never}
			if t.hasCadence {
				spec.Cadence = t.cadence
			}
		} else {
			p.logger.Warn().Str("collection", name).Str("template", spec.Template).Msg("unknown template")
		}
	}

	if raw, ok := fields["sync_mode"]; ok {
		spec.SyncMode = collection.ParseSyncMode(asString(raw))
	}
	if raw := asString(fields["schedule"]); raw != "" {
		spec.Cadence = schedule.Parse(raw)
	}
	if v, ok := asInt(fields["minimum_items"]); ok {
		spec.MinimumItems = v
	}
	if v, ok := asInt(fields["limit"]); ok {
		spec.Limit = v
	}

	base := collection.Filter{}
	if tpl != nil {
		base = tpl.filter
	}
	if filters, ok := fields["filters"].(map[string]any); ok {
		spec.Filter = parseFilter(filters, base)
	}

	// Source directives, in the order the YAML declares them.
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		sourceType, ok := sourceKeys[key]
		if !ok {
			continue
		}
		directive, err := parseDirective(sourceType, fields[key])
		if err != nil {
			return collection.Spec{}, fmt.Errorf("directive %s: %w", key, err)
		}
		spec.Sources = append(spec.Sources, directive)

		// A discover block's limit doubles as the collection cap when no
		// explicit limit is set.
		if sourceType == collection.SourceTMDBDiscover && spec.Limit == 0 && directive.Discover != nil {
			spec.Limit = directive.Discover.Limit
		}
	}

	return spec, nil
}

func templateName(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		return asString(v["name"])
	}
	return ""
}

func parseDirective(sourceType collection.SourceType, value any) (collection.SourceDirective, error) {
	d := collection.SourceDirective{Type: sourceType}

	switch sourceType {
	case collection.SourceTMDBTrendingWeekly, collection.SourceTMDBTrendingDaily,
		collection.SourceTMDBPopular, collection.SourceTraktTrending, collection.SourceTraktPopular:
		limit, ok := asInt(value)
		if !ok {
			return d, fmt.Errorf("expected an item count, got %v", value)
		}
		d.Limit = limit

	case collection.SourceTMDBDiscover:
		fields, ok := value.(map[string]any)
		if !ok {
			return d, fmt.Errorf("expected a parameter map, got %v", value)
		}
		discover := parseDiscover(fields)
		d.Discover = &discover
		d.Limit = discover.Limit

	case collection.SourceTMDBList:
		ids := tmdbListIDs(value)
		if len(ids) == 0 {
			return d, fmt.Errorf("no usable list ids in %v", value)
		}
		d.TMDBList = ids

	case collection.SourceIMDBChart, collection.SourceIMDBList:
		if fields, ok := value.(map[string]any); ok {
			d.ListIDs = asStringList(fields["list_ids"])
			if limit, ok := asInt(fields["limit"]); ok {
				d.Limit = limit
			}
		} else {
			d.ListIDs = asStringList(value)
		}
		if len(d.ListIDs) == 0 {
			return d, fmt.Errorf("no list ids in %v", value)
		}

	case collection.SourceTraktChart:
		fields, ok := value.(map[string]any)
		if !ok {
			return d, fmt.Errorf("expected a chart map, got %v", value)
		}
		d.Chart = asString(fields["chart"])
		d.Period = asString(fields["time_period"])
		if limit, ok := asInt(fields["limit"]); ok {
			d.Limit = limit
		} else {
			d.Limit = 20
		}
	}

	return d, nil
}

func parseFilter(fields map[string]any, base collection.Filter) collection.Filter {
	f := base

	if v, ok := asInt(fields["year.gte"]); ok {
		f.YearGTE = &v
	}
	if v, ok := asInt(fields["year.lte"]); ok {
		f.YearLTE = &v
	}
	if v, ok := asFloat(fields["vote_average.gte"]); ok {
		f.VoteAverageGTE = &v
	}
	if v, ok := asFloat(fields["vote_average.lte"]); ok {
		f.VoteAverageLTE = &v
	}
	if v, ok := asFloat(fields["critic_rating.gte"]); ok {
		f.CriticRatingGTE = &v
	}
	if v, ok := asInt(fields["tmdb_vote_count.gte"]); ok {
		f.VoteCountGTE = &v
	}
	if v, ok := asInt(fields["tmdb_vote_count.lte"]); ok {
		f.VoteCountLTE = &v
	}
	if _, ok := fields["country.not"]; ok {
		f.CountryNot = asStringList(fields["country.not"])
	}
	if _, ok := fields["origin_country.not"]; ok {
		f.OriginCountryNot = asStringList(fields["origin_country.not"])
	}
	if _, ok := fields["original_language.not"]; ok {
		f.OriginalLanguageNot = asStringList(fields["original_language.not"])
	}
	if _, ok := fields["with_genres"]; ok {
		f.WithGenres = asIntList(fields["with_genres"], ",")
	}
	if _, ok := fields["without_genres"]; ok {
		f.WithoutGenres = asIntList(fields["without_genres"], ",")
	}

	return f
}

func parseDiscover(fields map[string]any) collection.DiscoverSpec {
	d := collection.DiscoverSpec{
		SortBy:            asString(fields["sort_by"]),
		WatchRegion:       asString(fields["watch_region"]),
		WithOrigLanguage:  asString(fields["with_original_language"]),
		WithOriginCountry: asString(fields["with_origin_country"]),
		WithReleaseType:   asString(fields["with_release_type"]),
		WithStatus:        asString(fields["with_status"]),
	}

	if v, ok := asFloat(fields["vote_average.gte"]); ok {
		d.VoteAverageGTE = v
	}
	if v, ok := asFloat(fields["vote_average.lte"]); ok {
		d.VoteAverageLTE = v
	}
	if v, ok := asInt(fields["vote_count.gte"]); ok {
		d.VoteCountGTE = v
	}
	if v, ok := asInt(fields["vote_count.lte"]); ok {
		d.VoteCountLTE = v
	}
	if v, ok := asInt(fields["limit"]); ok {
		d.Limit = v
	}

	d.WithGenres = asIntList(fields["with_genres"], ",")
	d.WithoutGenres = asIntList(fields["without_genres"], ",")
	// Kometa separates watch providers with | for OR semantics.
	d.WithWatchProviders = asIntList(fields["with_watch_providers"], "|")

	d.ReleaseDateGTE = asDate(fields["primary_release_date.gte"], fields["first_air_date.gte"])
	d.ReleaseDateLTE = asDate(fields["primary_release_date.lte"], fields["first_air_date.lte"])

	return d
}

func tmdbListIDs(value any) []int {
	values, ok := value.([]any)
	if !ok {
		values = []any{value}
	}

	var ids []int
	for _, v := range values {
		if id, ok := asInt(v); ok {
			ids = append(ids, id)
			continue
		}
		if match := tmdbListURLPattern.FindStringSubmatch(asString(v)); match != nil {
			if id, err := strconv.Atoi(match[1]); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func mappingValue(root *yaml.Node, key string) *yaml.Node {
	node := root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func asStringList(value any) []string {
	if value == nil {
		return nil
	}
	values, ok := value.([]any)
	if !ok {
		values = []any{value}
	}

	var out []string
	for _, v := range values {
		if s := strings.TrimSpace(asString(v)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// asIntList accepts a single int, a delimited string, or a list.
func asIntList(value any, sep string) []int {
	if value == nil {
		return nil
	}

	if s, ok := value.(string); ok {
		var out []int
		for _, part := range strings.Split(s, sep) {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				out = append(out, n)
			}
		}
		return out
	}

	values, ok := value.([]any)
	if !ok {
		values = []any{value}
	}
	var out []int
	for _, v := range values {
		if n, ok := asInt(v); ok {
			out = append(out, n)
		}
	}
	return out
}

// asDate returns the first value that parses as YYYY-MM-DD.
func asDate(values ...any) string {
	for _, value := range values {
		s := asString(value)
		if s == "" {
			if t, ok := value.(time.Time); ok {
				return t.Format("2006-01-02")
			}
			continue
		}
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return s
		}
	}
	return ""
}

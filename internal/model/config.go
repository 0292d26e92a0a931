package model

import "time"

// Config is the immutable configuration snapshot for one run
type Config struct {
	HTTP              HTTPConfig              `yaml:"http" mapstructure:"http"`
	Cache             CacheConfig             `yaml:"cache" mapstructure:"cache"`
	LLM               LLMConfig               `yaml:"llm" mapstructure:"llm"`
	Search            SearchConfig            `yaml:"search" mapstructure:"search"`
	Pipeline          PipelineConfig          `yaml:"pipeline" mapstructure:"pipeline"`
	Calculation       CalculationConfig       `yaml:"calculation" mapstructure:"calculation"`
	SourceReliability SourceReliabilityConfig `yaml:"source_reliability" mapstructure:"source_reliability"`
	Authority         AuthorityConfig         `yaml:"authority" mapstructure:"authority"`
	Concurrency       ConcurrencyConfig       `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting      RateLimitConfig         `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Output            OutputConfig            `yaml:"output" mapstructure:"output"`
	Server            ServerConfig            `yaml:"server" mapstructure:"server"`
	JobStore          JobStoreConfig          `yaml:"job_store" mapstructure:"job_store"`
}

// HTTPConfig controls outbound fetching
type HTTPConfig struct {
	Timeout              time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent            string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRedirects         int           `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxBodyBytes         int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRetries           int           `yaml:"max_retries" mapstructure:"max_retries"`
	RespectRobots        bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	AllowPrivateNetworks bool          `yaml:"allow_private_networks" mapstructure:"allow_private_networks"`
	Proxy                string        `yaml:"proxy" mapstructure:"proxy"`
}

// CacheConfig controls the page cache
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend  string        `yaml:"backend" mapstructure:"backend"` // memory, disk, layered, redis
	Dir      string        `yaml:"dir" mapstructure:"dir"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
	RedisURL string        `yaml:"redis_url" mapstructure:"redis_url"`
}

// LLMConfig controls the model gateway
type LLMConfig struct {
	Providers   []ProviderConfig `yaml:"providers" mapstructure:"providers"` // Ordered fallback chain
	Timeout     time.Duration    `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int              `yaml:"max_retries" mapstructure:"max_retries"`
	MaxTokens   int              `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32          `yaml:"temperature" mapstructure:"temperature"`
}

// ProviderConfig configures one model provider
type ProviderConfig struct {
	Name    string `yaml:"name" mapstructure:"name"` // openai, anthropic, gemini, ollama
	Model   string `yaml:"model" mapstructure:"model"`
	APIKey  string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// SearchConfig controls web search
type SearchConfig struct {
	Providers       []string      `yaml:"providers" mapstructure:"providers"` // google, serpapi
	GoogleAPIKey    string        `yaml:"google_api_key,omitempty" mapstructure:"google_api_key"`
	GoogleCX        string        `yaml:"google_cx,omitempty" mapstructure:"google_cx"`
	SerpAPIKey      string        `yaml:"serpapi_key,omitempty" mapstructure:"serpapi_key"`
	SerpAPIBaseURL  string        `yaml:"serpapi_base_url,omitempty" mapstructure:"serpapi_base_url"`
	MaxResults      int           `yaml:"max_results" mapstructure:"max_results"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	DomainWhitelist []string      `yaml:"domain_whitelist" mapstructure:"domain_whitelist"`
	DomainBlacklist []string      `yaml:"domain_blacklist" mapstructure:"domain_blacklist"`
	DateRestrict    string        `yaml:"date_restrict" mapstructure:"date_restrict"`
}

// PipelineConfig controls orchestration and budgets
type PipelineConfig struct {
	MaxIterationsPerContext    int     `yaml:"max_iterations_per_context" mapstructure:"max_iterations_per_context"`
	MaxTotalIterations         int     `yaml:"max_total_iterations" mapstructure:"max_total_iterations"`
	MaxTotalTokens             int     `yaml:"max_total_tokens" mapstructure:"max_total_tokens"`
	HardBudget                 bool    `yaml:"hard_budget" mapstructure:"hard_budget"`
	ContextSimilarityThreshold float64 `yaml:"context_similarity_threshold" mapstructure:"context_similarity_threshold"`
	SourceTextMaxChars         int     `yaml:"source_text_max_chars" mapstructure:"source_text_max_chars"`
	SupplementalDetection      bool    `yaml:"supplemental_detection" mapstructure:"supplemental_detection"`
	Deterministic              bool    `yaml:"deterministic" mapstructure:"deterministic"`
	TargetEvidencePerContext   int     `yaml:"target_evidence_per_context" mapstructure:"target_evidence_per_context"`
	SourcesPerQuery            int     `yaml:"sources_per_query" mapstructure:"sources_per_query"`
	QueriesPerRound            int     `yaml:"queries_per_round" mapstructure:"queries_per_round"`

	Filter FilterConfig `yaml:"filter" mapstructure:"filter"`
}

// FilterConfig holds evidence quality filter thresholds
type FilterConfig struct {
	MinStatementLength int      `yaml:"min_statement_length" mapstructure:"min_statement_length"`
	MaxVaguePhrases    int      `yaml:"max_vague_phrases" mapstructure:"max_vague_phrases"`
	RequireExcerpt     bool     `yaml:"require_excerpt" mapstructure:"require_excerpt"`
	MinExcerptLength   int      `yaml:"min_excerpt_length" mapstructure:"min_excerpt_length"`
	RequireURL         bool     `yaml:"require_url" mapstructure:"require_url"`
	DedupThreshold     float64  `yaml:"dedup_threshold" mapstructure:"dedup_threshold"`
	VaguePhrases       []string `yaml:"vague_phrases" mapstructure:"vague_phrases"`
}

// CalculationConfig holds verdict aggregation constants
type CalculationConfig struct {
	Bands                    BandConfig         `yaml:"bands" mapstructure:"bands"`
	MixedConfidenceThreshold int                `yaml:"mixed_confidence_threshold" mapstructure:"mixed_confidence_threshold"`
	ProbativeWeights         map[string]float64 `yaml:"probative_weights" mapstructure:"probative_weights"`
	SourceTypeCalibration    map[string]float64 `yaml:"source_type_calibration" mapstructure:"source_type_calibration"`
	ContestationPenalty      map[string]int     `yaml:"contestation_penalty" mapstructure:"contestation_penalty"`
	MaxContestationPenalty   int                `yaml:"max_contestation_penalty" mapstructure:"max_contestation_penalty"`
	CentralityWeights        map[string]float64 `yaml:"centrality_weights" mapstructure:"centrality_weights"`
	SpreadMultiplier         float64            `yaml:"spread_multiplier" mapstructure:"spread_multiplier"`
	ConsensusMultiplier      float64            `yaml:"consensus_multiplier" mapstructure:"consensus_multiplier"`
	ConfidenceSaturation     int                `yaml:"confidence_saturation" mapstructure:"confidence_saturation"`
	ClaimGate                ClaimGateConfig    `yaml:"claim_gate" mapstructure:"claim_gate"`
	VerdictGate              VerdictGateConfig  `yaml:"verdict_gate" mapstructure:"verdict_gate"`
}

// BandConfig holds the lower bound of each truth band
type BandConfig struct {
	True         int `yaml:"true" mapstructure:"true"`
	MostlyTrue   int `yaml:"mostly_true" mapstructure:"mostly_true"`
	LeaningTrue  int `yaml:"leaning_true" mapstructure:"leaning_true"`
	Mixed        int `yaml:"mixed" mapstructure:"mixed"`
	LeaningFalse int `yaml:"leaning_false" mapstructure:"leaning_false"`
	MostlyFalse  int `yaml:"mostly_false" mapstructure:"mostly_false"`
}

// ClaimGateConfig holds Gate 1 thresholds
type ClaimGateConfig struct {
	OpinionThreshold float64 `yaml:"opinion_threshold" mapstructure:"opinion_threshold"`
	MinSpecificity   float64 `yaml:"min_specificity" mapstructure:"min_specificity"`
}

// VerdictGateConfig holds Gate 4 tier thresholds
type VerdictGateConfig struct {
	HighMinEvidence    int     `yaml:"high_min_evidence" mapstructure:"high_min_evidence"`
	HighMinQuality     float64 `yaml:"high_min_quality" mapstructure:"high_min_quality"`
	HighMinAgreement   float64 `yaml:"high_min_agreement" mapstructure:"high_min_agreement"`
	MediumMinEvidence  int     `yaml:"medium_min_evidence" mapstructure:"medium_min_evidence"`
	MediumMinQuality   float64 `yaml:"medium_min_quality" mapstructure:"medium_min_quality"`
	MediumMinAgreement float64 `yaml:"medium_min_agreement" mapstructure:"medium_min_agreement"`
}

// SourceReliabilityConfig controls the reliability evaluator and its cache
type SourceReliabilityConfig struct {
	Enabled            bool          `yaml:"enabled" mapstructure:"enabled"`
	Store              string        `yaml:"store" mapstructure:"store"` // memory, disk, layered, redis, sqlite
	Path               string        `yaml:"path" mapstructure:"path"`
	RedisURL           string        `yaml:"redis_url" mapstructure:"redis_url"`
	CacheTTL           time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	DefaultScore       float64       `yaml:"default_score" mapstructure:"default_score"`
	DefaultConfidence  float64       `yaml:"default_confidence" mapstructure:"default_confidence"`
	ConsensusThreshold float64       `yaml:"consensus_threshold" mapstructure:"consensus_threshold"`
	MinConfidence      float64       `yaml:"min_confidence" mapstructure:"min_confidence"`
	PrimaryProvider    string        `yaml:"primary_provider" mapstructure:"primary_provider"`
	SecondaryProvider  string        `yaml:"secondary_provider" mapstructure:"secondary_provider"`
	Grounding          bool          `yaml:"grounding" mapstructure:"grounding"`
	PerIPPerHour       int           `yaml:"per_ip_per_hour" mapstructure:"per_ip_per_hour"`
	PerDomainPerHour   int           `yaml:"per_domain_per_hour" mapstructure:"per_domain_per_hour"`
	PlatformHosts      []string      `yaml:"platform_hosts" mapstructure:"platform_hosts"`
	DisposableTLDs     []string      `yaml:"disposable_tlds" mapstructure:"disposable_tlds"`
	PrefetchWorkers    int           `yaml:"prefetch_workers" mapstructure:"prefetch_workers"`
}

// AuthorityConfig maps domains to source types for the URL classifier
type AuthorityConfig struct {
	PeerReviewed  []string `yaml:"peer_reviewed" mapstructure:"peer_reviewed"`
	FactCheck     []string `yaml:"fact_check" mapstructure:"fact_check"`
	Government    []string `yaml:"government" mapstructure:"government"`
	Legal         []string `yaml:"legal" mapstructure:"legal"`
	NewsPrimary   []string `yaml:"news_primary" mapstructure:"news_primary"`
	NewsSecondary []string `yaml:"news_secondary" mapstructure:"news_secondary"`
	Organization  []string `yaml:"organization" mapstructure:"organization"`
	Blog          []string `yaml:"blog" mapstructure:"blog"`
}

// ConcurrencyConfig controls worker pools
type ConcurrencyConfig struct {
	ContextWorkers int `yaml:"context_workers" mapstructure:"context_workers"`
	FetchWorkers   int `yaml:"fetch_workers" mapstructure:"fetch_workers"`
	BatchWorkers   int `yaml:"batch_workers" mapstructure:"batch_workers"`
}

// RateLimitConfig controls per-domain fetch rates
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	JSON     bool   `yaml:"json" mapstructure:"json"`
	Markdown bool   `yaml:"markdown" mapstructure:"markdown"`
	LogJSON  bool   `yaml:"log_json" mapstructure:"log_json"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// JobStoreConfig controls status write-back to the external job store
type JobStoreConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:       20 * time.Second,
			UserAgent:     "factlens/0.1 (+https://github.com/ppiankov/factlens)",
			MaxRedirects:  5,
			MaxBodyBytes:  5 * 1024 * 1024,
			MaxRetries:    2,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "layered",
			Dir:     "~/.factlens/cache",
			TTL:     24 * time.Hour,
		},
		LLM: LLMConfig{
			Providers: []ProviderConfig{
				{Name: "openai", Model: "gpt-4o-mini"},
				{Name: "anthropic", Model: "claude-3-5-haiku-latest"},
				{Name: "gemini", Model: "gemini-1.5-flash"},
			},
			Timeout:     60 * time.Second,
			MaxRetries:  2,
			MaxTokens:   2048,
			Temperature: 0.3,
		},
		Search: SearchConfig{
			Providers:  []string{"google", "serpapi"},
			MaxResults: 5,
			Timeout:    15 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxIterationsPerContext:    3,
			MaxTotalIterations:         8,
			MaxTotalTokens:             200000,
			ContextSimilarityThreshold: 0.85,
			SourceTextMaxChars:         12000,
			SupplementalDetection:      true,
			TargetEvidencePerContext:   8,
			SourcesPerQuery:            3,
			QueriesPerRound:            3,
			Filter: FilterConfig{
				MinStatementLength: 20,
				MaxVaguePhrases:    1,
				RequireExcerpt:     true,
				MinExcerptLength:   30,
				RequireURL:         true,
				DedupThreshold:     0.85,
				VaguePhrases: []string{
					"some say", "some people", "many believe", "it is said", "reportedly",
					"allegedly", "it is believed", "critics say", "experts say", "according to some",
					"it seems", "might be", "could be", "possibly", "arguably",
				},
			},
		},
		Calculation: CalculationConfig{
			Bands: BandConfig{
				True:         86,
				MostlyTrue:   72,
				LeaningTrue:  58,
				Mixed:        43,
				LeaningFalse: 29,
				MostlyFalse:  15,
			},
			MixedConfidenceThreshold: 60,
			ProbativeWeights: map[string]float64{
				string(ProbativeHigh):   1.0,
				string(ProbativeMedium): 0.8,
				string(ProbativeLow):    0.5,
			},
			SourceTypeCalibration: map[string]float64{
				string(SourcePeerReviewed):  1.0,
				string(SourceFactCheck):     1.0,
				string(SourceGovernment):    1.0,
				string(SourceLegal):         1.0,
				string(SourceNewsPrimary):   1.0,
				string(SourceNewsSecondary): 0.9,
				string(SourceExpert):        0.9,
				string(SourceOrganization):  0.9,
				string(SourceBlog):          0.8,
				string(SourceOther):         0.8,
			},
			ContestationPenalty: map[string]int{
				string(ContestedEstablished): 12,
				string(ContestedDisputed):    5,
			},
			MaxContestationPenalty: 25,
			CentralityWeights: map[string]float64{
				string(CentralityHigh):   3,
				string(CentralityMedium): 2,
				string(CentralityLow):    1,
			},
			SpreadMultiplier:     1.5,
			ConsensusMultiplier:  1.15,
			ConfidenceSaturation: 6,
			ClaimGate: ClaimGateConfig{
				OpinionThreshold: 0.6,
				MinSpecificity:   0.3,
			},
			VerdictGate: VerdictGateConfig{
				HighMinEvidence:    3,
				HighMinQuality:     0.7,
				HighMinAgreement:   0.7,
				MediumMinEvidence:  2,
				MediumMinQuality:   0.5,
				MediumMinAgreement: 0.5,
			},
		},
		SourceReliability: SourceReliabilityConfig{
			Enabled:            true,
			Store:              "sqlite",
			Path:               "~/.factlens/source-reliability.db",
			CacheTTL:           90 * 24 * time.Hour,
			DefaultScore:       0.5,
			DefaultConfidence:  0.1,
			ConsensusThreshold: 0.20,
			MinConfidence:      0.80,
			PrimaryProvider:    "anthropic",
			SecondaryProvider:  "openai",
			PerIPPerHour:       60,
			PerDomainPerHour:   6,
			PlatformHosts: []string{
				"facebook.com", "twitter.com", "x.com", "instagram.com", "tiktok.com",
				"youtube.com", "reddit.com", "medium.com", "substack.com", "blogspot.com",
				"wordpress.com", "tumblr.com", "linkedin.com", "pinterest.com",
			},
			DisposableTLDs:  []string{"tk", "ml", "ga", "cf", "gq", "xyz", "top", "click"},
			PrefetchWorkers: 4,
		},
		Authority: AuthorityConfig{
			PeerReviewed:  []string{"nature.com", "science.org", "thelancet.com", "nejm.org", "pubmed.ncbi.nlm.nih.gov", "arxiv.org", "jstor.org", "springer.com", "sciencedirect.com", "cell.com", "bmj.com", "plos.org"},
			FactCheck:     []string{"snopes.com", "politifact.com", "factcheck.org", "fullfact.org", "afp.com", "correctiv.org", "leadstories.com"},
			Government:    []string{"who.int", "un.org", "europa.eu", "cdc.gov", "nih.gov", "gov.uk", "census.gov", "bls.gov", "oecd.org", "worldbank.org", "imf.org"},
			Legal:         []string{"supremecourt.gov", "uscourts.gov", "law.cornell.edu", "courtlistener.com", "curia.europa.eu", "echr.coe.int", "legislation.gov.uk", "eur-lex.europa.eu"},
			NewsPrimary:   []string{"reuters.com", "apnews.com", "bbc.co.uk", "bbc.com", "afp.com"},
			NewsSecondary: []string{"nytimes.com", "washingtonpost.com", "theguardian.com", "wsj.com", "ft.com", "economist.com", "cnn.com", "npr.org", "aljazeera.com", "bloomberg.com"},
			Organization:  []string{"amnesty.org", "hrw.org", "icrc.org", "redcross.org", "greenpeace.org", "pewresearch.org", "brookings.edu", "rand.org"},
			Blog:          []string{"medium.com", "substack.com", "blogspot.com", "wordpress.com", "tumblr.com"},
		},
		Concurrency: ConcurrencyConfig{
			ContextWorkers: 3,
			FetchWorkers:   4,
			BatchWorkers:   2,
		},
		RateLimiting: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 1.0,
			Burst:             2,
		},
		Output: OutputConfig{
			Dir:      "./factlens-out",
			JSON:     true,
			Markdown: true,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 10 * time.Minute,
		},
		JobStore: JobStoreConfig{
			Timeout: 10 * time.Second,
		},
	}
}

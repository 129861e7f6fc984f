package workflow

// Agent capability names used by the built-in definitions. The engine treats
// these as opaque strings; they must match the names bound in the agent
// registry at startup.
const (
	AgentResearch        = "research"
	AgentContentStudio   = "content-studio"
	AgentListingWriter   = "listing-writer"
	AgentMarketAnalysis  = "market-analysis"
	AgentImageProcessing = "image-processing"
)

// Built-in workflow type identifiers.
const (
	TypeContentCampaign     = "content-campaign"
	TypeListingOptimization = "listing-optimization"
	TypeBrandBuilding       = "brand-building"
	TypeInvestmentAnalysis  = "investment-analysis"
)

// Builtins returns the four stock Bayon Coagent workflow templates.
// Callers register them into a Registry at startup; they are plain data and
// can be replaced or extended by YAML-loaded definitions.
func Builtins() []*Definition {
	return []*Definition{
		contentCampaign(),
		listingOptimization(),
		brandBuilding(),
		investmentAnalysis(),
	}
}

// contentCampaign researches a topic, then fans out into blog, social and
// email content. Social and email are nice-to-have; the campaign survives
// their failure as a partial result.
func contentCampaign() *Definition {
	return &Definition{
		Type:        TypeContentCampaign,
		Description: "Research-driven content campaign: blog post, social posts and email sequence for one topic.",
		Steps: []StepTemplate{
			{
				ID:       "research",
				Agent:    AgentResearch,
				Critical: true,
				Input: map[string]SourceRef{
					"topic":    {Kind: SourceParams, Key: "topic"},
					"location": {Kind: SourceParams, Key: "location"},
				},
			},
			{
				ID:        "blog-post",
				Agent:     AgentContentStudio,
				DependsOn: []string{"research"},
				Critical:  true,
				Input: map[string]SourceRef{
					"topic":    {Kind: SourceParams, Key: "topic"},
					"research": {Kind: SourceStep, StepID: "research"},
				},
			},
			{
				ID:        "social-media",
				Agent:     AgentContentStudio,
				DependsOn: []string{"research"},
				Input: map[string]SourceRef{
					"topic":    {Kind: SourceParams, Key: "topic"},
					"research": {Kind: SourceStep, StepID: "research"},
				},
			},
			{
				ID:        "email-campaign",
				Agent:     AgentContentStudio,
				DependsOn: []string{"research", "blog-post"},
				Input: map[string]SourceRef{
					"topic": {Kind: SourceParams, Key: "topic"},
					"blog":  {Kind: SourceStep, StepID: "blog-post"},
				},
			},
		},
	}
}

// listingOptimization builds a persona-aware listing description from
// comparable sales, then optimizes it for search.
func listingOptimization() *Definition {
	return &Definition{
		Type:        TypeListingOptimization,
		Description: "Comparable-aware listing description generation with SEO optimization.",
		Steps: []StepTemplate{
			{
				ID:       "comparables",
				Agent:    AgentMarketAnalysis,
				Critical: true,
				Input: map[string]SourceRef{
					"location":      {Kind: SourceParams, Key: "location"},
					"property_type": {Kind: SourceParams, Key: "property_type"},
				},
			},
			{
				ID:    "neighborhood",
				Agent: AgentResearch,
				Input: map[string]SourceRef{
					"location": {Kind: SourceParams, Key: "location"},
				},
			},
			{
				ID:    "photo-analysis",
				Agent: AgentImageProcessing,
				Input: map[string]SourceRef{
					"photos": {Kind: SourceParams, Key: "photos"},
				},
			},
			{
				ID:        "listing-draft",
				Agent:     AgentListingWriter,
				DependsOn: []string{"comparables"},
				Critical:  true,
				Input: map[string]SourceRef{
					"property_details": {Kind: SourceParams, Key: "property_details"},
					"persona":          {Kind: SourceParams, Key: "persona"},
					"comparables":      {Kind: SourceStep, StepID: "comparables"},
				},
			},
			{
				ID:        "seo-optimize",
				Agent:     AgentContentStudio,
				DependsOn: []string{"listing-draft"},
				Critical:  true,
				Input: map[string]SourceRef{
					"location":    {Kind: SourceParams, Key: "location"},
					"description": {Kind: SourceStep, StepID: "listing-draft", Key: "description"},
				},
			},
		},
	}
}

// brandBuilding is a strictly sequential audit -> strategy -> content chain.
func brandBuilding() *Definition {
	return &Definition{
		Type:        TypeBrandBuilding,
		Description: "Agent brand audit, positioning strategy and launch content.",
		Steps: []StepTemplate{
			{
				ID:       "brand-audit",
				Agent:    AgentResearch,
				Critical: true,
				Input: map[string]SourceRef{
					"agent_profile": {Kind: SourceParams, Key: "agent_profile"},
					"market":        {Kind: SourceParams, Key: "market"},
				},
			},
			{
				ID:        "brand-strategy",
				Agent:     AgentMarketAnalysis,
				DependsOn: []string{"brand-audit"},
				Critical:  true,
				Input: map[string]SourceRef{
					"audit": {Kind: SourceStep, StepID: "brand-audit"},
				},
			},
			{
				ID:        "brand-content",
				Agent:     AgentContentStudio,
				DependsOn: []string{"brand-strategy"},
				Critical:  true,
				Input: map[string]SourceRef{
					"strategy": {Kind: SourceStep, StepID: "brand-strategy"},
				},
			},
		},
	}
}

// investmentAnalysis chains a market update into ROI math and a final report.
func investmentAnalysis() *Definition {
	return &Definition{
		Type:        TypeInvestmentAnalysis,
		Description: "Market conditions, ROI and cash-flow analysis for an investment property.",
		Steps: []StepTemplate{
			{
				ID:       "market-update",
				Agent:    AgentMarketAnalysis,
				Critical: true,
				Input: map[string]SourceRef{
					"location":      {Kind: SourceParams, Key: "location"},
					"property_type": {Kind: SourceParams, Key: "property_type"},
				},
			},
			{
				ID:        "roi-analysis",
				Agent:     AgentMarketAnalysis,
				DependsOn: []string{"market-update"},
				Critical:  true,
				Input: map[string]SourceRef{
					"purchase_price": {Kind: SourceParams, Key: "purchase_price"},
					"monthly_rent":   {Kind: SourceParams, Key: "monthly_rent"},
					"market":         {Kind: SourceStep, StepID: "market-update"},
				},
			},
			{
				ID:        "investment-report",
				Agent:     AgentContentStudio,
				DependsOn: []string{"market-update", "roi-analysis"},
				Critical:  true,
				Input: map[string]SourceRef{
					"market": {Kind: SourceStep, StepID: "market-update"},
					"roi":    {Kind: SourceStep, StepID: "roi-analysis"},
				},
			},
		},
	}
}

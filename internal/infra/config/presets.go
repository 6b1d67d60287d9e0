package config

import (
	"sort"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

var presets = map[string]func() domain.Hierarchy{
	"portfolio": portfolioPreset,
	"joke":      jokePreset,
}

// Preset returns a copy of the built-in hierarchy with the given name.
func Preset(name string) (domain.Hierarchy, bool) {
	build, ok := presets[name]
	if !ok {
		return domain.Hierarchy{}, false
	}
	return build(), true
}

// PresetNames lists the built-in hierarchies in lexical order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func portfolioPreset() domain.Hierarchy {
	return domain.Hierarchy{
		Name:          "portfolio",
		RootTag:       "portfolio",
		GuardrailName: "no_bitcoin_guardrail",
		PromptTemplate: "Analyze the stock {{.Ticker}}. Look up recent news and stock price data, " +
			"then provide a detailed analysis and investment considerations.",
		Models: []string{
			"anthropic.claude-3-sonnet-20240229-v1:0",
			"anthropic.claude-3-haiku-20240307-v1:0",
		},
		Leaves: []domain.AgentSpec{
			{
				Name:        "news_agent",
				Description: "Market News Researcher",
				Instruction: "Top researcher in financial markets and company announcements.",
				AliasName:   "news-alias",
			},
			{
				Name:        "stock_data_agent",
				Description: "Financial Data Collector",
				Instruction: "Specialist in real-time financial data extraction.",
				AliasName:   "stock-data-alias",
			},
			{
				Name:        "analyst_agent",
				Description: "Financial Analyst",
				Instruction: "Analyze stock trends and market news to generate insights. " +
					"Experienced analyst providing strategic recommendations. " +
					"You take as input the news summary and stock price summary.",
				AliasName: "analyst-alias",
			},
		},
		Supervisor: domain.SupervisorSpec{
			AgentSpec: domain.AgentSpec{
				Name:        "portfolio_assistant",
				Description: "Portfolio Assistant Agent",
				Instruction: "Act as a seasoned expert at analyzing a potential stock investment for a given " +
					"stock ticker. Do your research to understand how the stock price has been moving " +
					"lately, as well as recent news on the stock. Give back a well written and " +
					"carefully considered report with considerations for a potential investor. " +
					"You use your analyst collaborator to perform the final analysis, and you give " +
					"the news and stock data to the analyst as input. Use your collaborators in sequence, not in parallel.",
			},
			Collaborators: []domain.CollaboratorSpec{
				{
					Agent:       "news_agent",
					Instruction: "Use this collaborator for finding news about specific stocks.",
				},
				{
					Agent:       "stock_data_agent",
					Instruction: "Use this collaborator for finding price history for specific stocks.",
				},
				{
					Agent: "analyst_agent",
					Instruction: "Use this collaborator for taking the raw research and writing a detailed " +
						"report and investment considerations.",
				},
			},
		},
	}
}

func jokePreset() domain.Hierarchy {
	return domain.Hierarchy{
		Name:    "joke",
		RootTag: "supervisor",
		Models: []string{
			"anthropic.claude-3-sonnet-20240229-v1:0",
			"anthropic.claude-3-5-sonnet-20240620-v1:0",
			"anthropic.claude-3-haiku-20240307-v1:0",
		},
		Leaves: []domain.AgentSpec{
			{
				Name:        "joke_agent_1",
				Description: "Interactive Joke-telling Agent",
				Instruction: "You are a playful AI that tells jokes. " +
					"On each user query, respond with a single, funny joke related to the prompt.",
				AliasName: "joke-alias",
			},
		},
		Supervisor: domain.SupervisorSpec{
			AgentSpec: domain.AgentSpec{
				Name:        "joke_supervisor_agent_1",
				Description: "Supervisor agent that coordinates with the joke agent",
				Instruction: "You are a supervisor agent that handles requests from users. " +
					"Your job is to forward all requests to the joke agent and relay the responses back to the user. " +
					"Do not modify the responses from the joke agent. Simply relay exactly what the joke agent responds with.",
			},
			Collaborators: []domain.CollaboratorSpec{
				{
					Agent:       "joke_agent_1",
					Instruction: "You are a joke agent. Generate funny jokes based on user prompts.",
				},
			},
		},
	}
}

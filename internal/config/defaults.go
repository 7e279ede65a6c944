package config

import "time"

const defaultRagOverlap = 150

// Built-in agent ids.
const (
	AgentTutor   = "tutor"
	AgentPlanner = "planner"
	AgentHelper  = "helper"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = Duration(60 * time.Second)
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/progress.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "./data/index"
	}
	if cfg.Storage.DefaultIndex == "" {
		cfg.Storage.DefaultIndex = "default"
	}
	if cfg.Storage.IndexType == "" {
		cfg.Storage.IndexType = "memory"
	}
	if cfg.Storage.Qdrant.Host == "" {
		cfg.Storage.Qdrant.Host = "localhost"
	}
	if cfg.Storage.Qdrant.Port == 0 {
		cfg.Storage.Qdrant.Port = 6334
	}
	if cfg.Storage.Qdrant.CollectionPrefix == "" {
		cfg.Storage.Qdrant.CollectionPrefix = "mentoria_"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-large"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 3072
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = Duration(15 * time.Second)
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 500
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = "openai"
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = Duration(60 * time.Second)
	}
	if cfg.Search.SnippetLength == 0 {
		cfg.Search.SnippetLength = 1200
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 50
	}
	applyProgressDefaults(&cfg.Progress)
	if len(cfg.Agents) == 0 {
		cfg.Agents = DefaultAgents()
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = AgentTutor
	}
	for id, a := range cfg.Agents {
		a.applyDefaults(id, cfg.Embedding.Model)
		cfg.Agents[id] = a
	}
}

func applyProgressDefaults(p *ProgressConfig) {
	if p.LevelSpan == 0 {
		p.LevelSpan = 50
	}
	if p.XPGoal == 0 {
		p.XPGoal = 300
	}
	if p.RecentEvents == 0 {
		p.RecentEvents = 10
	}
	if p.ChatXP == 0 {
		p.ChatXP = 1
	}
	if len(p.LevelLabels) == 0 {
		p.LevelLabels = []string{"Diagnóstico", "Fundamentos", "Prática Guiada", "Desafios Avançados", "Mentoria"}
	}
	if p.Badges == nil {
		p.Badges = []BadgeRule{{50, "Bronze"}, {100, "Prata"}, {150, "Ouro"}}
	}
	if p.GradeXP == nil {
		p.GradeXP = []GradeXPRule{{90, 10}, {70, 5}, {40, 2}, {0, 0}}
	}
}

// DefaultAgents returns the built-in agent set.
func DefaultAgents() map[string]AgentConfig {
	return map[string]AgentConfig{
		AgentTutor: {
			Name:         "Tutor",
			EmbedModel:   "text-embedding-3-large",
			RagK:         6,
			RagChunkSize: 800,
			RagOverlap:   intPtr(150),
			ToolsEnabled: boolPtr(true),
			SystemPrompt: "Você é um tutor paciente. Explique com exemplos curtos, " +
				"cite as fontes recebidas entre colchetes e termine com uma pergunta de verificação.",
		},
		AgentPlanner: {
			Name:         "Planejador",
			EmbedModel:   "text-embedding-3-small",
			RagK:         3,
			RagChunkSize: 600,
			RagOverlap:   intPtr(100),
			ToolsEnabled: boolPtr(false),
			SystemPrompt: "Você organiza planos de estudo em etapas semanais com metas mensuráveis.",
		},
		AgentHelper: {
			Name:         "Ajudante",
			EmbedModel:   "text-embedding-3-small",
			RagK:         4,
			RagChunkSize: 500,
			RagOverlap:   intPtr(80),
			ToolsEnabled: boolPtr(false),
			SystemPrompt: "Você responde dúvidas conceituais de forma direta, em até três parágrafos.",
		},
	}
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

package config

import "time"

var (
	Server    server
	Storage   storage
	Database  database
	Graph     graph
	Milvus    milvus
	Openai    openai
	Cognee    cognee
	Git       git
	Indexing  indexing
	Agents    agents
	Query     query
	History   history
	Removal   removal
	Telemetry telemetry
)

type server struct{}

func (server) Port() int64                  { return get().Server.Port }
func (server) CorsAllowedOrigins() []string { return get().Server.CorsAllowedOrigins }

type storage struct{}

func (storage) Driver() string     { return get().Storage.Driver }
func (storage) SqlitePath() string { return get().Storage.SqlitePath }
func (storage) BadgerPath() string { return get().Storage.BadgerPath }

type database struct{}

func (database) Dsn() string { return get().Database.Dsn }

type graph struct{}

func (graph) Driver() string { return get().Graph.Driver }

type milvus struct{}

func (milvus) Address() string        { return get().Milvus.Address }
func (milvus) CollectionName() string { return get().Milvus.CollectionName }
func (milvus) SearchLimit() int64      { return get().Milvus.SearchLimit }

type openai struct{}

func (openai) ApiKey() string         { return get().Openai.ApiKey }
func (openai) EmbeddingModel() string { return get().Openai.EmbeddingModel }
func (openai) ChatModel() string      { return get().Openai.ChatModel }

type cognee struct{}

func (cognee) BaseURL() string { return get().Cognee.BaseURL }
func (cognee) ApiKey() string  { return get().Cognee.ApiKey }

func (cognee) RequestsPerSecond() float64 { return get().Cognee.RequestsPerSecond }

type git struct{}

func (git) GithubToken() string { return get().Git.GithubToken }

type indexing struct{}

func (indexing) CloneDir() string             { return get().Indexing.CloneDir }
func (indexing) MaxFileSizeBytes() int64      { return get().Indexing.MaxFileSizeBytes }
func (indexing) MaxConcurrentJobs() int64     { return get().Indexing.MaxConcurrentJobs }
func (indexing) MaxRetries() int64            { return get().Indexing.MaxRetries }
func (indexing) BackoffBase() time.Duration   { return get().Indexing.BackoffBase }
func (indexing) BackoffCap() time.Duration    { return get().Indexing.BackoffCap }
func (indexing) PollInterval() time.Duration  { return get().Indexing.PollInterval }
func (indexing) AutoSync() bool               { return get().Indexing.AutoSync }

type agents struct{}

func (agents) Timeout() time.Duration { return get().Agents.Timeout }
func (agents) Planner() string        { return get().Agents.Planner }

type query struct{}

func (query) MaxLength() int64 { return get().Query.MaxLength }

type history struct{}

func (history) PageSize() int64 { return get().History.PageSize }

type removal struct{}

func (removal) PurgeGraph() bool { return get().Removal.PurgeGraph }

type telemetry struct{}

func (telemetry) TraceExporter() string { return get().Telemetry.TraceExporter }
func (telemetry) OtlpEndpoint() string  { return get().Telemetry.OtlpEndpoint }
func (telemetry) ServiceName() string   { return get().Telemetry.ServiceName }

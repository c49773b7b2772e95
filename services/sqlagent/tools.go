package sqlagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/upb/analytics-tools/repositories/sqldb"
	"github.com/upb/analytics-tools/services"
	"github.com/upb/analytics-tools/services/providers"
)

// Tool names exposed to the model
const (
	ToolListTables = "sql_db_list_tables"
	ToolSchema     = "sql_db_schema"
	ToolQuery      = "sql_db_query"
)

// Database is the subset of sqldb.DB the tools need
type Database interface {
	Dialect() sqldb.Dialect
	TableNames(ctx context.Context) ([]string, error)
	TableInfo(ctx context.Context, names []string) (string, error)
	Run(ctx context.Context, query string) (string, error)
}

// Tool is a function the model can call. Call returns the observation
// handed back to the model; an error means the call could not be made.
type Tool interface {
	Definition() providers.Tool
	Call(ctx context.Context, arguments string) (string, error)
}

// NewToolkit returns the three SQL tools bound to db
func NewToolkit(db Database) []Tool {
	return []Tool{
		listTablesTool{db: db},
		schemaTool{db: db},
		queryTool{db: db},
	}
}

type listTablesTool struct {
	db Database
}

func (t listTablesTool) Definition() providers.Tool {
	return providers.Tool{
		Name:        ToolListTables,
		Description: "Input is an empty string, output is a comma-separated list of tables in the database.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

func (t listTablesTool) Call(ctx context.Context, _ string) (string, error) {
	names, err := t.db.TableNames(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(names, ", "), nil
}

type schemaTool struct {
	db Database
}

func (t schemaTool) Definition() providers.Tool {
	return providers.Tool{
		Name: ToolSchema,
		Description: "Input to this tool is a comma-separated list of tables, output is the schema and sample rows for those tables. " +
			"Be sure that the tables actually exist by calling " + ToolListTables + " first! " +
			"Example Input: table1, table2, table3",
		Parameters: json.RawMessage(`{"type":"object","properties":{"table_names":{"type":"string","description":"A comma-separated list of the table names for which to return the schema."}},"required":["table_names"]}`),
	}
}

func (t schemaTool) Call(ctx context.Context, arguments string) (string, error) {
	var args struct {
		TableNames string `json:"table_names"`
	}
	if err := decodeArgs(arguments, &args); err != nil {
		return "", err
	}

	var names []string
	for _, n := range strings.Split(args.TableNames, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", services.NewDomainError(services.ErrorTypeValidation, "table_names is empty", nil)
	}

	return t.db.TableInfo(ctx, names)
}

type queryTool struct {
	db Database
}

func (t queryTool) Definition() providers.Tool {
	return providers.Tool{
		Name: ToolQuery,
		Description: "Input to this tool is a detailed and correct SQL query, output is a result from the database. " +
			"If the query is not correct, an error message will be returned. " +
			"If an error is returned, rewrite the query, check the query, and try again. " +
			"If you encounter an issue with Unknown column 'xxxx' in 'field list', use " + ToolSchema +
			" to query the correct table fields.",
		Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"A detailed and correct SQL query."}},"required":["query"]}`),
	}
}

func (t queryTool) Call(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(arguments, &args); err != nil {
		return "", err
	}
	if !IsReadOnly(args.Query) {
		return "", services.NewDomainError(services.ErrorTypeValidation, "only a single SELECT or WITH statement may be run", nil).
			WithDetail("query", args.Query)
	}
	return t.db.Run(ctx, args.Query)
}

func decodeArgs(arguments string, v any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := gojson.Unmarshal([]byte(arguments), v); err != nil {
		return services.NewDomainError(services.ErrorTypeValidation, "invalid tool arguments", err).
			WithDetail("arguments", arguments)
	}
	return nil
}

// IsReadOnly reports whether query is a single statement starting with
// SELECT or WITH that names no writing keyword outside string literals.
// Leading comments and one trailing semicolon are allowed. The database
// still runs the query in a read-only transaction.
func IsReadOnly(query string) bool {
	q := stripLeadingComments(query)
	q = strings.TrimSuffix(strings.TrimSpace(q), ";")
	if strings.Contains(q, ";") {
		return false
	}

	words := keywords(q)
	if len(words) == 0 {
		return false
	}
	switch words[0] {
	case "SELECT", "WITH":
	default:
		return false
	}
	for _, w := range words[1:] {
		if _, ok := writeKeywords[w]; ok {
			return false
		}
	}
	return true
}

var writeKeywords = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "MERGE": {}, "UPSERT": {},
	"DROP": {}, "ALTER": {}, "CREATE": {}, "TRUNCATE": {}, "RENAME": {},
	"GRANT": {}, "REVOKE": {}, "INTO": {}, "ATTACH": {}, "DETACH": {},
	"PRAGMA": {}, "VACUUM": {}, "REINDEX": {}, "COPY": {}, "CALL": {},
	"EXEC": {}, "EXECUTE": {},
}

// keywords returns the upper-cased bare words of q, skipping quoted text
func keywords(q string) []string {
	var words []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
		}
	}
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			flush()
			j := strings.IndexByte(q[i+1:], c)
			if j < 0 {
				return words
			}
			i += j + 1
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			word.WriteByte(c)
		default:
			flush()
		}
	}
	flush()
	return words
}

func stripLeadingComments(q string) string {
	for {
		q = strings.TrimSpace(q)
		switch {
		case strings.HasPrefix(q, "--"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = q[i+1:]
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q, "*/")
			if i < 0 {
				return ""
			}
			q = q[i+2:]
		default:
			return q
		}
	}
}

// observation renders a tool failure the way the model sees it
func observation(err error) string {
	return fmt.Sprintf("Error: %v", err)
}

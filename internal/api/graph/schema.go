package graph

import (
	"context"
	_ "embed"
	"fmt"
	"runtime/debug"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"
)

// SchemaSDL is the GraphQL schema served by the API.
//
//go:embed schema.graphql
var SchemaSDL string

// NewSchema parses SchemaSDL and binds it to r. Panics raised inside resolvers
// are recovered by the engine and logged through r.Logger.
func NewSchema(r *Resolver, opts ...graphql.SchemaOpt) (*graphql.Schema, error) {
	opts = append([]graphql.SchemaOpt{
		graphql.Logger(panicLogger{logger: r.logger()}),
		graphql.MaxParallelism(10),
	}, opts...)

	schema, err := graphql.ParseSchema(SchemaSDL, r, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL schema: %w", err)
	}
	return schema, nil
}

// ParseSDL loads SchemaSDL into a gqlparser AST, used for validation and
// pretty-printing.
func ParseSDL() (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: SchemaSDL})
	if err != nil {
		return nil, fmt.Errorf("failed to load GraphQL schema: %w", err)
	}
	return schema, nil
}

type panicLogger struct {
	logger *zap.Logger
}

func (l panicLogger) LogPanic(ctx context.Context, value interface{}) {
	l.logger.Error("Panic in GraphQL resolver",
		zap.Any("panic", value),
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.ByteString("stack", debug.Stack()))
}

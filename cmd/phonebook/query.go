package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/echotools/phonebook/internal/api"
	"github.com/echotools/phonebook/internal/api/graph"
)

func newQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query [query]",
		Aliases: []string{"graphql"},
		Short:   "Execute a GraphQL query or mutation",
		Long: `Execute a GraphQL query or mutation against the phonebook.

By default the query runs in-process against the configured store. With
--url it is sent to a running server instead.`,
		Example: `  # Count persons
  phonebook query '{ personCount }'

  # Persons without a phone number
  phonebook query '{ allPersons(phone: NO) { name address { street city } } }'

  # Use variables
  phonebook query -v '{"name": "Arto Hellas"}' 'query($name: String!) { findPerson(name: $name) { phone } }'

  # Act as a user
  phonebook query --as mluukkai '{ me { username friends { name } } }'

  # Read from stdin against a running server
  cat query.graphql | phonebook query --url http://localhost:4000

  # Print the schema
  phonebook query --schema`,
		Args: cobra.MaximumNArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().Bool("json", false, "Output raw JSON")
	cmd.Flags().StringP("variables", "v", "", "Query variables as a JSON object")
	cmd.Flags().StringP("operation", "o", "", "Operation name")
	cmd.Flags().Bool("schema", false, "Print the GraphQL schema and exit")
	cmd.Flags().String("as", "", "Username to execute the query as")
	cmd.Flags().String("url", "", "Base URL of a running server (e.g., http://localhost:4000)")
	cmd.Flags().Duration("timeout", 30*time.Second, "Request timeout")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	if schemaOnly, _ := flags.GetBool("schema"); schemaOnly {
		return printSchema(cmd.OutOrStdout())
	}

	var query string
	if len(args) == 1 {
		query = args[0]
	} else {
		stdinQuery, err := readQuery(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if stdinQuery == "" {
			return fmt.Errorf("no query provided (pass as argument or pipe to stdin)")
		}
		query = stdinQuery
	}

	var variables map[string]interface{}
	if raw, _ := flags.GetString("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &variables); err != nil {
			return fmt.Errorf("invalid variables JSON: %w", err)
		}
	}

	req := api.GraphQLRequest{Query: query, Variables: variables}
	req.OperationName, _ = flags.GetString("operation")
	username, _ := flags.GetString("as")
	timeout, _ := flags.GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var (
		resp *api.GraphQLResponse
		err  error
	)
	if url, _ := flags.GetString("url"); url != "" {
		client := api.NewClient(api.ClientConfig{BaseURL: url, Timeout: timeout, Username: username})
		resp, err = client.Do(ctx, req)
	} else {
		resp, err = executeLocal(ctx, req, username)
	}
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}

	if rawJSON, _ := flags.GetBool("json"); rawJSON {
		fmt.Fprintln(cmd.OutOrStdout(), string(resp.Data))
	} else {
		prettyPrint(cmd.OutOrStdout(), resp.Data)
	}
	return nil
}

// readQuery reads the query from r when it is a pipe or file.
func readQuery(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("checking stdin: %w", err)
		}
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return "", nil
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// executeLocal runs the request through an in-process schema bound to the
// configured store.
func executeLocal(ctx context.Context, req api.GraphQLRequest, username string) (*api.GraphQLResponse, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close(context.Background())

	schema, err := graph.NewSchema(graph.NewResolver(st, nil, cliLogger()))
	if err != nil {
		return nil, err
	}

	if username != "" {
		ctx = graph.WithUsername(ctx, username)
	}
	result := schema.Exec(ctx, req.Query, req.OperationName, req.Variables)

	// Round-trip through JSON so local and remote results share one shape.
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	var resp api.GraphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// prettyPrint writes indented JSON, colored when w is a terminal.
func prettyPrint(w io.Writer, data []byte) {
	out := pretty.Pretty(data)
	if f, ok := w.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			out = pretty.Color(out, nil)
		}
	}
	fmt.Fprint(w, string(out))
}

func printSchema(w io.Writer) error {
	schema, err := graph.ParseSDL()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatSchema(schema)
	_, err = buf.WriteTo(w)
	return err
}

// Command validate runs the JSON validation pipeline from the terminal:
// against a file, against the bundled demo documents, or interactively.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mbaylor/formrules/internal/logger"
	"github.com/mbaylor/formrules/validation"
)

func main() {
	var (
		filePath     string
		schemaPath   string
		demo         bool
		interactive  bool
		showTestData bool
	)

	flag.StringVar(&filePath, "file", "", "JSON document to validate")
	flag.StringVar(&schemaPath, "schema", "", "JSON Schema file (default: bundled sample schema)")
	flag.BoolVar(&demo, "demo", false, "Run the demo over the bundled test documents")
	flag.BoolVar(&interactive, "interactive", false, "Interactive validation mode")
	flag.BoolVar(&showTestData, "show-test-data", false, "Print the bundled test documents and rules")
	flag.Parse()

	switch {
	case showTestData:
		runShowTestData()
	case demo:
		runDemo(newPipeline(schemaPath))
	case interactive:
		runInteractive(newPipeline(schemaPath))
	case filePath != "":
		runFile(newPipeline(schemaPath), filePath)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func newPipeline(schemaPath string) *validation.Pipeline {
	schemaJSON := validation.SampleSchema()
	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read schema: %v\n", err)
			os.Exit(1)
		}
		schemaJSON = data
	}

	schemaValidator, err := validation.NewJSONSchemaValidator(schemaJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid schema: %v\n", err)
		os.Exit(1)
	}

	semantic := validation.NewOpenAIValidator(os.Getenv("OPENAI_API_KEY"))
	if !semantic.Configured() {
		fmt.Println("Note: OPENAI_API_KEY not set; semantic validation will be skipped")
	}

	return validation.NewPipeline(schemaValidator, semantic, logger.Logger)
}

func runFile(pipeline *validation.Pipeline, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read document: %v\n", err)
		os.Exit(1)
	}

	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		fmt.Fprintf(os.Stderr, "parse document: %v\n", err)
		os.Exit(1)
	}

	report := pipeline.Validate(context.Background(), document, validation.BusinessRules())
	printReport(report, path)
	if !report.OverallValid {
		os.Exit(1)
	}
}

func runDemo(pipeline *validation.Pipeline) {
	fmt.Println("JSON Rules Validator - Demo")
	printSeparator("")

	rules := validation.BusinessRules()
	fmt.Printf("Using %d business rules for validation:\n", len(rules))
	for i, rule := range rules {
		fmt.Printf("  %d. %s\n", i+1, rule)
	}

	cases := []struct {
		name     string
		document map[string]any
	}{
		{"Valid Data", validation.ValidTestData()},
		{"Invalid Schema Data", validation.InvalidSchemaData()},
		{"Invalid Semantic Data", validation.InvalidSemanticData()},
	}
	for i, doc := range validation.EdgeCaseData() {
		cases = append(cases, struct {
			name     string
			document map[string]any
		}{fmt.Sprintf("Edge Case %d", i+1), doc})
	}

	for _, tc := range cases {
		printSeparator("Testing: " + tc.name)
		printJSON(tc.document)
		report := pipeline.Validate(context.Background(), tc.document, rules)
		printReport(report, tc.name)
		fmt.Println()
	}
}

func runInteractive(pipeline *validation.Pipeline) {
	fmt.Println("JSON Rules Validator - Interactive Mode")
	printSeparator("")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("1. Validate custom JSON (paste one line)")
		fmt.Println("2. Use predefined valid test data")
		fmt.Println("3. Exit")
		fmt.Print("\nEnter your choice (1-3): ")

		if !scanner.Scan() {
			return
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			fmt.Print("Paste JSON document: ")
			if !scanner.Scan() {
				return
			}
			var document any
			if err := json.Unmarshal([]byte(scanner.Text()), &document); err != nil {
				fmt.Printf("Invalid JSON: %v\n", err)
				continue
			}
			printReport(pipeline.Validate(context.Background(), document, validation.BusinessRules()), "custom document")

		case "2":
			printReport(pipeline.Validate(context.Background(), validation.ValidTestData(), validation.BusinessRules()), "valid test data")

		case "3":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Println("Unknown choice")
		}
	}
}

func runShowTestData() {
	fmt.Println("Test Data Examples")
	printSeparator("")

	fmt.Println("\n1. Valid Data:")
	printJSON(validation.ValidTestData())

	fmt.Println("\n2. Invalid Schema Data:")
	printJSON(validation.InvalidSchemaData())

	fmt.Println("\n3. Invalid Semantic Data:")
	printJSON(validation.InvalidSemanticData())

	fmt.Println("\n4. Edge Cases:")
	for i, doc := range validation.EdgeCaseData() {
		fmt.Printf("\nEdge Case %d:\n", i+1)
		printJSON(doc)
	}

	fmt.Println("\n5. Business Rules:")
	for _, rule := range validation.BusinessRules() {
		fmt.Printf("- %s\n", rule)
	}
}

func printReport(report validation.Report, title string) {
	printSeparator("Validation Result: " + title)
	fmt.Printf("Overall Valid: %v\n", report.OverallValid)
	fmt.Printf("Schema Validation: %s\n", passedLabel(report.SchemaValidation))
	fmt.Printf("Semantic Validation: %s\n", passedLabel(report.SemanticValidation))

	if len(report.SchemaValidation.Errors) > 0 && !report.SchemaValidation.Passed {
		fmt.Println("\nSchema Errors:")
		for _, e := range report.SchemaValidation.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	if len(report.SemanticValidation.Errors) > 0 && !report.SemanticValidation.Passed {
		fmt.Println("\nSemantic Errors:")
		for _, e := range report.SemanticValidation.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nSummary: %s\n", report.Summary)
}

func passedLabel(r validation.Result) string {
	switch {
	case r.Skipped:
		return "SKIPPED"
	case r.Passed:
		return "PASSED"
	default:
		return "FAILED"
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(out))
}

func printSeparator(title string) {
	if title != "" {
		fmt.Printf("\n==================== %s ====================\n", title)
	} else {
		fmt.Println(strings.Repeat("=", 60))
	}
}

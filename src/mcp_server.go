package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// the config location and site the MCP tools talk to, set once in startMCP
var mcpConfigPath string
var mcpSite string

var embeddedResources = map[string]string{
	"info": "This is the 'sdu' tool server. 'sdu' uploads MRI scan directories to the research data repository and can list the projects and subjects it knows about.",
}

func startMCP(useHttp string, configPath string, site string) {
	// if the useHttp string is empty use stdin/stdout
	if useHttp == "" {
		log.Println("Starting MCP server using stdin/stdout")
	}
	mcpConfigPath = configPath
	mcpSite = site

	opts := &mcp.ServerOptions{
		Instructions:      "Use this server with the MCP protocol in vcode or other clients.",
		CompletionHandler: complete, // support completions by setting this handler
	}

	server := mcp.NewServer(&mcp.Implementation{Name: own_name, Version: version}, opts)

	mcp.AddTool(server, &mcp.Tool{Name: "sdu/info", Description: "SDU uploads MRI scan directories to the research data repository. The list of tools includes listing projects and subjects and running an upload."}, infoTool)
	mcp.AddTool(server, &mcp.Tool{Name: "projects/list", Description: "List the project codes on the research data repository."}, projectsTool)
	mcp.AddTool(server, &mcp.Tool{Name: "subjects/list", Description: "List the subjects (label and accession number) of one project."}, subjectsTool)
	mcp.AddTool(server, &mcp.Tool{Name: "upload", Description: "Upload the MRI scan directories under a data folder to one project. Processed subject directories move to a sibling 'done' folder. This can take a while, wait for the operation to finish."}, uploadTool)

	// Add an embedded resource.
	server.AddResource(&mcp.Resource{
		Name:     "info",
		MIMEType: "text/plain",
		URI:      "embedded:info",
	}, embeddedResource)

	// Serve over stdio, or streamable HTTP if -http is set.
	if useHttp != "" {
		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return server
		}, nil)
		log.Printf("MCP handler listening at %s", useHttp)
		if err := http.ListenAndServe(useHttp, handler); err != nil {
			log.Printf("Server failed: %v", err)
		}
	} else {
		t := &mcp.LoggingTransport{Transport: &mcp.StdioTransport{}, Writer: os.Stderr}
		if err := server.Run(context.Background(), t); err != nil {
			log.Printf("Server failed: %v", err)
		}
	}
}

func embeddedResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	u, err := url.Parse(req.Params.URI)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "embedded" {
		return nil, fmt.Errorf("wrong scheme: %q", u.Scheme)
	}
	key := u.Opaque
	text, ok := embeddedResources[key]
	if !ok {
		return nil, fmt.Errorf("no embedded resource named %q", key)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: req.Params.URI, MIMEType: "text/plain", Text: text},
		},
	}, nil
}

type argsEmpty struct{}

type argsProject struct {
	Project string `json:"project" jsonschema:"the project code on the research data repository"`
}

type argsUpload struct {
	Project string `json:"project" jsonschema:"the project code on the research data repository"`
	Path    string `json:"path" jsonschema:"the data folder with one sub-directory per subject"`
}

type result struct {
	Message string `json:"message" jsonschema:"the message to convey"`
}

type resultUpload struct {
	Message     string `json:"message" jsonschema:"the message to convey"`
	NumSessions int    `json:"numsessions" jsonschema:"the number of imaging sessions created and populated"`
}

// infoTool returns a structured result.
func infoTool(ctx context.Context, req *mcp.CallToolRequest, args *argsEmpty) (*mcp.CallToolResult, *result, error) {
	return nil, &result{Message: embeddedResources["info"]}, nil
}

func projectsTool(ctx context.Context, req *mcp.CallToolRequest, args *argsEmpty) (*mcp.CallToolResult, *result, error) {
	repo, err := openRepository(mcpConfigPath, mcpSite)
	if err != nil {
		return nil, &result{Message: "Error, could not open the repository connection."}, err
	}
	projects, err := repo.ListProjects()
	if err != nil {
		return nil, &result{Message: "Error, could not list the projects."}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: strings.Join(projects, ",")},
		},
	}, &result{Message: fmt.Sprintf("Found %d projects", len(projects))}, nil
}

func subjectsTool(ctx context.Context, req *mcp.CallToolRequest, args *argsProject) (*mcp.CallToolResult, *result, error) {
	repo, err := openRepository(mcpConfigPath, mcpSite)
	if err != nil {
		return nil, &result{Message: "Error, could not open the repository connection."}, err
	}
	subjects, err := repo.ListSubjects(args.Project)
	if err != nil {
		return nil, &result{Message: "Error, could not list the subjects."}, err
	}
	var lines []string
	for _, s := range subjects {
		lines = append(lines, fmt.Sprintf("%s:%s", s.Label, s.ID))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: strings.Join(lines, ",")},
		},
	}, &result{Message: fmt.Sprintf("Found %d subjects in %s", len(subjects), args.Project)}, nil
}

func uploadTool(ctx context.Context, req *mcp.CallToolRequest, args *argsUpload) (*mcp.CallToolResult, *resultUpload, error) {
	repo, err := openRepository(mcpConfigPath, mcpSite)
	if err != nil {
		return nil, &resultUpload{Message: "Error, could not open the repository connection."}, err
	}
	if args.Path == "" {
		// ask the user for the directory of the data to upload
		res, err := req.Session.Elicit(ctx, &mcp.ElicitParams{
			Message: "Where is the data that should be uploaded",
			RequestedSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"path": {Type: "string", Description: "The data folder on the local machine with one sub-directory per subject."},
				},
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("eliciting failed: %v", err)
		}
		args.Path, _ = res.Content["path"].(string)
	}
	if _, err := os.Stat(args.Path); os.IsNotExist(err) {
		return nil, &resultUpload{Message: "Error, the data folder does not exist."}, err
	}
	up := NewUploader(repo)
	numSessions, err := up.uploadScans(args.Project, args.Path)
	if err != nil {
		return nil, &resultUpload{Message: "Error, the upload failed.", NumSessions: numSessions}, err
	}
	return nil, &resultUpload{Message: fmt.Sprintf("Uploaded %d session(s) to %s", numSessions, args.Project), NumSessions: numSessions}, nil
}

func complete(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	var suggestions []string
	switch req.Params.Ref.Type {
	case "ref/prompt":
		suggestions = []string{"sdu upload", "sdu projects", "sdu subjects"}
	case "ref/resource":
		suggestions = []string{"info"}
	default:
		return nil, fmt.Errorf("unrecognized content type %s", req.Params.Ref.Type)
	}

	return &mcp.CompleteResult{
		Completion: mcp.CompletionResultDetails{
			Total:  len(suggestions),
			Values: suggestions,
		},
	}, nil
}

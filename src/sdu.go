// Code written 2021 by Hauke Bartsch.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

const version string = "0.0.1"

// The string below will be replaced during build time using
// -ldflags "-X main.compileDate=`date -u +.%Y%m%d.%H%M%S"`"
var compileDate string = ".unknown"

var own_name string = "sdu"

const httpTimeout = 60 * time.Second

func exitGracefully(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func check(e error) {
	if e != nil {
		exitGracefully(e)
	}
}

// openRepository builds an authenticated client for one of the sites in
// the config file.
func openRepository(configPath string, site string) (Repository, error) {
	config, err := readSiteConfig(configPath)
	if err != nil {
		return nil, err
	}
	s, err := config.siteConfig(site)
	if err != nil {
		return nil, err
	}
	return newXNATClient(s, httpTimeout), nil
}

// listSubjectsCSV writes the label to accession number mapping of all
// subjects in the project to a csv file and returns its name.
func listSubjectsCSV(repo Repository, projectcode string) (string, error) {
	subjects, err := repo.ListSubjects(projectcode)
	if err != nil {
		return "", err
	}
	outfilename := projectcode + "subjectlist.csv"
	f, err := os.Create(outfilename)
	if err != nil {
		return "", err
	}
	defer f.Close()
	mywriter := csv.NewWriter(f)
	if err := mywriter.Write([]string{"ID", "subject_ID"}); err != nil {
		return "", err
	}
	for _, s := range subjects {
		fmt.Printf("ID=%s,SubjectID=%s\n", s.Label, s.ID)
		if err := mywriter.Write([]string{s.Label, s.ID}); err != nil {
			return "", err
		}
	}
	mywriter.Flush()
	return outfilename, mywriter.Error()
}

func main() {

	configCommand := flag.NewFlagSet("config", flag.ContinueOnError)
	projectsCommand := flag.NewFlagSet("projects", flag.ContinueOnError)
	subjectsCommand := flag.NewFlagSet("subjects", flag.ContinueOnError)
	uploadCommand := flag.NewFlagSet("upload", flag.ContinueOnError)
	statusCommand := flag.NewFlagSet("status", flag.ContinueOnError)
	mcpCommand := flag.NewFlagSet("mcp", flag.ContinueOnError)

	const defaultSite = "xnat-dev"
	const siteUsage = "Name of the site in the config file."
	const configUsage = "Path to the config file with the known sites."

	var config_path string
	var config_site string
	configCommand.StringVar(&config_path, "config", defaultConfigPath(), configUsage)
	configCommand.StringVar(&config_site, "site", "", "Name of the site to add or update.")
	var config_url string
	configCommand.StringVar(&config_url, "url", "", "Server url of the site, like https://xnat.example.com.")
	var config_user string
	configCommand.StringVar(&config_user, "user", "", "User name for the site.")
	var config_pass string
	configCommand.StringVar(&config_pass, "pass", "", "Password for the site.")

	var projects_config string
	var projects_site string
	projectsCommand.StringVar(&projects_config, "config", defaultConfigPath(), configUsage)
	projectsCommand.StringVar(&projects_site, "site", defaultSite, siteUsage)

	var subjects_config string
	var subjects_site string
	subjectsCommand.StringVar(&subjects_config, "config", defaultConfigPath(), configUsage)
	subjectsCommand.StringVar(&subjects_site, "site", defaultSite, siteUsage)

	var upload_config string
	var upload_site string
	uploadCommand.StringVar(&upload_config, "config", defaultConfigPath(), configUsage)
	uploadCommand.StringVar(&upload_site, "site", defaultSite, siteUsage)
	var upload_skip_owner_check bool
	uploadCommand.BoolVar(&upload_skip_owner_check, "skip-owner-check", false, "Debug option, upload scans even if the owner in the DICOM header does not match the project.")
	var upload_delete_empty bool
	uploadCommand.BoolVar(&upload_delete_empty, "delete-empty", false, "Remove an experiment again if all of its scans were skipped. Default is to leave it on the server.")
	var upload_preview bool
	uploadCommand.BoolVar(&upload_preview, "preview", false, "Show one slice of each scan on the terminal during upload.")

	var mcp_config string
	var mcp_site string
	var mcp_http string
	mcpCommand.StringVar(&mcp_config, "config", defaultConfigPath(), configUsage)
	mcpCommand.StringVar(&mcp_site, "site", defaultSite, siteUsage)
	mcpCommand.StringVar(&mcp_http, "http", "", "Serve the MCP protocol over streamable http on this address, by default stdin/stdout is used.")

	var show_version bool
	flag.BoolVar(&show_version, "version", false, "Show the version number.")

	// Showing useful information when the user enters the --help option
	flag.Usage = func() {
		fmt.Printf("SDU - Scan Data Uploader for the research data repository\n")
		fmt.Printf("Version: %s%s\n", version, compileDate)
		fmt.Printf("Usage: %s [config|projects|subjects|upload|status|mcp] [options]\n", os.Args[0])
		fmt.Printf("\tUpload MRI scan directories with\n\t%s upload <project> <data directory>\n", os.Args[0])
		fmt.Printf("Option config:\n")
		configCommand.PrintDefaults()
		fmt.Printf("Option projects:\n")
		projectsCommand.PrintDefaults()
		fmt.Printf("Option subjects:\n")
		subjectsCommand.PrintDefaults()
		fmt.Printf("Option upload:\n")
		uploadCommand.PrintDefaults()
		fmt.Printf("Option status:\n")
		statusCommand.PrintDefaults()
		fmt.Printf("Option mcp:\n")
		mcpCommand.PrintDefaults()
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(-1)
	}

	switch os.Args[1] {
	case "config":
		if err := configCommand.Parse(os.Args[2:]); err == nil {
			config, err := readSiteConfig(config_path)
			if err != nil {
				// a missing file is fine here, we create it below
				config = Config{Sites: make(map[string]SiteConfig)}
			}
			if config_site == "" {
				// no site to change, just print what we know (without the passwords)
				for name, s := range config.Sites {
					fmt.Printf("%s: %s user %s\n", name, s.URL, s.User)
				}
				return
			}
			entry := config.Sites[config_site]
			if config_url != "" {
				entry.URL = config_url
			}
			if config_user != "" {
				entry.User = config_user
			}
			if config_pass != "" {
				entry.Pass = config_pass
			}
			config.Sites[config_site] = entry
			if !config.writeConfig(config_path) {
				exitGracefully(errors.New("could not write the config file"))
			}
			fmt.Printf("Updated site %s in %s\n", config_site, config_path)
		}
	case "projects":
		if err := projectsCommand.Parse(os.Args[2:]); err == nil {
			repo, err := openRepository(projects_config, projects_site)
			check(err)
			projects, err := repo.ListProjects()
			check(err)
			for _, p := range projects {
				fmt.Println(p)
			}
		}
	case "subjects":
		if err := subjectsCommand.Parse(os.Args[2:]); err == nil {
			if subjectsCommand.NArg() != 1 {
				exitGracefully(errors.New("we need the project code, like\n\tsdu subjects QBICC"))
			}
			repo, err := openRepository(subjects_config, subjects_site)
			check(err)
			outfilename, err := listSubjectsCSV(repo, subjectsCommand.Arg(0))
			check(err)
			fmt.Printf("Wrote %s\n", outfilename)
		}
	case "upload":
		if err := uploadCommand.Parse(os.Args[2:]); err == nil {
			if uploadCommand.NArg() != 2 {
				exitGracefully(errors.New("we need the project code and the data directory, like\n\tsdu upload QBICC /data/irc5scans/data"))
			}
			repo, err := openRepository(upload_config, upload_site)
			check(err)
			up := NewUploader(repo)
			up.skipOwnerCheck = upload_skip_owner_check
			up.deleteEmpty = upload_delete_empty
			up.showPreview = upload_preview
			_, err = up.uploadScans(uploadCommand.Arg(0), uploadCommand.Arg(1))
			check(err)
		}
	case "status":
		if err := statusCommand.Parse(os.Args[2:]); err == nil {
			if statusCommand.NArg() != 1 {
				exitGracefully(errors.New("we need the data directory, like\n\tsdu status /data/irc5scans/data"))
			}
			statusTUI := StatusTUI{scandir: statusCommand.Arg(0)}
			statusTUI.Init()
		}
	case "mcp":
		if err := mcpCommand.Parse(os.Args[2:]); err == nil {
			startMCP(mcp_http, mcp_config, mcp_site)
		}
	default:
		// fall back to parsing without a command
		flag.Parse()
		if show_version {
			fmt.Printf("%s version %s%s\n", own_name, version, compileDate)
			os.Exit(0)
		}
		flag.Usage()
		os.Exit(-1)
	}
}

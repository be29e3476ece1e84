package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/david/funding-scout/internal/auth"
	"github.com/david/funding-scout/internal/discovery"
	"github.com/david/funding-scout/internal/models"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8081", "server base URL")
	query := flag.String("q", "", "search query")
	depth := flag.String("depth", string(models.DepthStandard), "quick, standard or comprehensive")
	user := flag.String("user", "", "user id to sign the token for")
	flag.Parse()

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		fmt.Println("Missing JWT_SECRET environment variable")
		os.Exit(1)
	}
	if *query == "" {
		fmt.Println("Missing -q")
		os.Exit(1)
	}

	userID := uuid.New()
	if *user != "" {
		var err error
		if userID, err = uuid.Parse(*user); err != nil {
			fmt.Printf("Invalid -user: %v\n", err)
			os.Exit(1)
		}
	}
	token, err := auth.SignToken([]byte(secret), userID, 10*time.Minute)
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	body, _ := json.Marshal(discovery.DiscoveryRequest{SearchQuery: *query, SearchDepth: models.SearchDepth(*depth)})
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/discover", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("Response Status: %s\n", resp.Status)
	out, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, out, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(out))
	}
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func prompt(r *bufio.Reader, msg string) string {
	fmt.Print(msg)
	s, _ := r.ReadString('\n')
	return strings.TrimSpace(s)
}

func main() {
	api := env("API_BASE", "http://localhost:8080")
	owner := env("OWNER_ID", "")
	key := env("ADMIN_API_KEY", "")

	reader := bufio.NewReader(os.Stdin)
	if owner == "" {
		owner = prompt(reader, "Owner id: ")
	}
	name := prompt(reader, "Display name: ")
	raw := prompt(reader, "Site URL to monitor (e.g., example.com): ")
	if name == "" || raw == "" {
		fmt.Println("Name and URL are required.")
		os.Exit(1)
	}

	// the API normalizes and validates the URL
	body, _ := json.Marshal(map[string]string{"name": name, "url": raw})
	req, err := http.NewRequest(http.MethodPost, api+"/api/targets", bytes.NewReader(body))
	if err != nil {
		fmt.Println("Bad API_BASE:", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", owner)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var t struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		}
		_ = json.Unmarshal(msg, &t)
		fmt.Printf("Added %s as %s. Check GET /api/targets/%s/status after the next tick.\n", t.URL, t.ID, t.ID)
		return
	}
	fmt.Println("API returned status:", resp.Status)
	fmt.Println(strings.TrimSpace(string(msg)))
	os.Exit(1)
}

// Smoke client: drives one full social flow against a running tribo-api and
// fails loudly on any deviation.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

var client = &http.Client{Timeout: 5 * time.Second}

var baseURL string

func main() {
	baseURL = os.Getenv("TRIBO_API_ADDR")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	suffix := fmt.Sprintf("%06d", rand.New(rand.NewSource(time.Now().UnixNano())).Intn(1_000_000))
	ana := "smoke-ana-" + suffix
	bia := "smoke-bia-" + suffix

	call(http.MethodPost, "/v1/users", map[string]string{
		"login": ana, "secret": "x", "name": "Smoke Ana"}, "", http.StatusCreated, nil)
	call(http.MethodPost, "/v1/users", map[string]string{
		"login": bia, "secret": "y", "name": "Smoke Bia"}, "", http.StatusCreated, nil)

	var session struct {
		Token string `json:"token"`
	}
	call(http.MethodPost, "/v1/sessions", map[string]string{
		"login": ana, "secret": "x"}, "", http.StatusOK, &session)
	anaTok := session.Token
	call(http.MethodPost, "/v1/sessions", map[string]string{
		"login": bia, "secret": "y"}, "", http.StatusOK, &session)
	biaTok := session.Token

	call(http.MethodPost, "/v1/friends", map[string]string{"login": bia}, anaTok,
		http.StatusNoContent, nil)
	call(http.MethodPost, "/v1/friends", map[string]string{"login": ana}, biaTok,
		http.StatusNoContent, nil)

	var friendCheck struct {
		Friends bool `json:"friends"`
	}
	call(http.MethodGet, "/v1/users/"+ana+"/friends?with="+bia, nil, "",
		http.StatusOK, &friendCheck)
	if !friendCheck.Friends {
		log.Fatal("friendship did not become symmetric")
	}

	call(http.MethodPost, "/v1/messages", map[string]string{
		"to": bia, "text": "smoke recado"}, anaTok, http.StatusAccepted, nil)

	var read struct {
		Message string `json:"message"`
	}
	call(http.MethodPost, "/v1/messages/next", nil, biaTok, http.StatusOK, &read)
	if read.Message != "smoke recado" {
		log.Fatalf("unexpected recado: %q", read.Message)
	}

	community := "smoke-gophers-" + suffix
	call(http.MethodPost, "/v1/communities", map[string]string{
		"name": community, "description": "smoke run"}, anaTok, http.StatusCreated, nil)
	call(http.MethodPost, "/v1/communities/"+community+"/members", nil, biaTok,
		http.StatusNoContent, nil)
	call(http.MethodPost, "/v1/communities/"+community+"/messages", map[string]string{
		"text": "smoke broadcast"}, anaTok, http.StatusAccepted, nil)

	call(http.MethodPost, "/v1/broadcasts/next", nil, biaTok, http.StatusOK, &read)
	if read.Message != "smoke broadcast" {
		log.Fatalf("unexpected broadcast: %q", read.Message)
	}

	// Leave no trace.
	call(http.MethodDelete, "/v1/users/me", nil, anaTok, http.StatusNoContent, nil)
	call(http.MethodDelete, "/v1/users/me", nil, biaTok, http.StatusNoContent, nil)

	fmt.Printf("✅ tribo-api smoke test passed: users=%s,%s\n", ana, bia)
}

func call(method, path string, body any, token string, wantStatus int, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, baseURL+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d", method, path, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

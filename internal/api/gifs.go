package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

const giphyBaseURL = "https://api.giphy.com/v1/gifs"

type GifResult struct {
	Id         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url"`
}

type giphyResponse struct {
	Data []struct {
		Id     string `json:"id"`
		Title  string `json:"title"`
		Images struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
			FixedHeightSmall struct {
				URL string `json:"url"`
			} `json:"fixed_height_small"`
		} `json:"images"`
	} `json:"data"`
}

// searchGifs proxies a Giphy search so the API key never reaches the
// browser. An empty query returns trending GIFs.
func (s *ChambersApp) searchGifs(w http.ResponseWriter, r *http.Request) {
	if s.giphyAPIKey == "" {
		errResp := NewServiceUnavailableError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	endpoint := "trending"
	if q != "" {
		endpoint = "search"
	}

	params := url.Values{}
	params.Set("api_key", s.giphyAPIKey)
	params.Set("limit", "20")
	params.Set("rating", "pg-13")
	if q != "" {
		params.Set("q", q)
	}

	resp, err := s.httpClient.Get(giphyBaseURL + "/" + endpoint + "?" + params.Encode())
	if err != nil {
		s.log.Println("giphy request:", err)
		errResp := NewBadGatewayError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer resp.Body.Close()

	var gr giphyResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		s.log.Println("giphy decode:", err)
		errResp := NewBadGatewayError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	results := make([]GifResult, 0, len(gr.Data))
	for _, g := range gr.Data {
		results = append(results, GifResult{
			Id:         g.Id,
			Title:      g.Title,
			URL:        g.Images.Original.URL,
			PreviewURL: g.Images.FixedHeightSmall.URL,
		})
	}

	s.writeJson(w, http.StatusOK, results)
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"sourcetrace/exif"
	"sourcetrace/extract"
)

// Local stand-in for the decoding sidecar: serves /health and /extract,
// answering every upload with a fixed extraction response. Useful for
// exercising the server pipeline without the real sidecar running.
func main() {
	port := flag.String("p", "5002", "Port to listen on")
	fixture := flag.String("fixture", "", "Optional JSON file with the extraction response to serve")
	flag.Parse()

	response := defaultResponse()
	if *fixture != "" {
		data, err := os.ReadFile(*fixture)
		if err != nil {
			log.Fatalf("failed to read fixture: %v", err)
		}
		var custom extract.ExtractionResponse
		if err := json.Unmarshal(data, &custom); err != nil {
			log.Fatalf("failed to parse fixture: %v", err)
		}
		response = custom
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	http.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "invalid upload", http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File["image"]
		if len(files) == 0 {
			http.Error(w, "no image provided", http.StatusBadRequest)
			return
		}
		log.Printf("extract request: %s (%d bytes)", files[0].Filename, files[0].Size)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Printf("failed to encode response: %v", err)
		}
	})

	log.Printf("Mock extractor listening on :%s", *port)
	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Fatalf("mock extractor: %v", err)
	}
}

func defaultResponse() extract.ExtractionResponse {
	return extract.ExtractionResponse{
		Tags: exif.TagSet{
			exif.TagMake:             {Text: "Apple"},
			exif.TagModel:            {Text: "iPhone 14 Pro"},
			exif.TagDateTimeOriginal: {Text: "2024:10:15 14:23:45"},
			exif.TagSoftware:         {Text: "iOS 17.1.2"},
			exif.TagISO:              {Text: "100"},
			exif.TagFNumber:          {Rationals: []exif.Rational{{Num: 9, Den: 5}}},
			exif.TagExposureTime:     {Text: "1/120"},
			exif.TagGPSLatitude: {Rationals: []exif.Rational{
				{Num: 40, Den: 1}, {Num: 42, Den: 1}, {Num: 46, Den: 1},
			}},
			exif.TagGPSLatitudeRef: {Text: "N"},
			exif.TagGPSLongitude: {Rationals: []exif.Rational{
				{Num: 74, Den: 1}, {Num: 0, Den: 1}, {Num: 21, Den: 1},
			}},
			exif.TagGPSLongitudeRef: {Text: "W"},
		},
		ManifestError: "no manifest found in image",
	}
}

// Command courtside submits match footage to the analysis pipeline, tracks the
// resulting jobs and plays back the analyzed video.
//
// Every command loads the TOML config (see `courtside config init`), reads an
// optional .env file from the working directory, and logs to stderr so stdout
// stays machine-readable under --json.
package main

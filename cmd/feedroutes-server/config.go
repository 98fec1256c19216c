package main

import (
	"feedroutes/services/routes"
)

type ServerConfig struct {
	Port int `json:"port"`
	// AccessToken, when set, must be presented as a bearer token.
	AccessToken string `json:"access_token"`
}

type Config struct {
	routes.Config
	Server ServerConfig `json:"server"`
}

const defaultPort = 1200

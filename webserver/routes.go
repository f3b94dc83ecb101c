package webserver

func (web *WebServer) routes() {
	web.router.HandleFunc("/api/v1.0/modules", web.modulesHdlr).Methods("GET")
	web.router.HandleFunc("/api/v1.0/sinks", web.sinksHdlr).Methods("GET")
	web.router.HandleFunc("/api/v1.0/sink/{sink}", web.sinkHdlr).Methods("GET")
	web.router.HandleFunc("/api/v1.0/sink/{sink}/volume", web.sinkVolumeHdlr).Methods("GET", "PUT")
	web.router.HandleFunc("/ws", web.webSocketHdlr)
}

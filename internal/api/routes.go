package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/upload", s.handleUpload)
		v1.POST("/analyze", s.handleAnalyze)
		v1.POST("/plan", s.handlePlan)

		v1.GET("/risk-assessment/questionnaire", s.handleQuestionnaire)
		v1.POST("/risk-assessment", s.handleRiskAssessment)
		v1.GET("/market-outlook", s.handleMarketOutlook)
		v1.GET("/stages", s.handleStages)

		runs := v1.Group("/runs")
		{
			runs.GET("", s.handleListRuns)
			runs.GET("/:id", s.handleGetRun)
		}
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/", s.handleRoot)
}

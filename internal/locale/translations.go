package locale

import "pocusai/internal/models"

// Translation is the subset of UI strings the conversation core needs.
type Translation struct {
	Welcome        string                        `json:"welcome"`
	AdultLabel     string                        `json:"adult_label"`
	PediatricLabel string                        `json:"pediatric_label"`
	QuickActions   map[models.Mode][]QuickAction `json:"quick_actions"`
}

var englishActions = map[models.Mode][]QuickAction{
	models.ModeAdult: {
		{Label: "eFAST (Trauma)", Query: "eFAST protocol for trauma and free fluid detection"},
		{Label: "RUSH (Shock)", Query: "RUSH protocol (Pump, Tank, Pipes) for hypotension"},
		{Label: "BLUE (Dyspnea)", Query: "BLUE protocol findings for acute respiratory failure"},
		{Label: "AAA (Aneurysm)", Query: "Abdominal Aortic Aneurysm scan and measurement"},
		{Label: "DVT (Thrombosis)", Query: "DVT diagnosis using 2-point compression technique"},
		{Label: "Cardiac Tamponade", Query: "Ultrasound signs of pericardial effusion and tamponade"},
		{Label: "Acute Cholecystitis", Query: "Gallbladder wall thickening and Sonographic Murphy sign"},
		{Label: "Renal Colic/Stone", Query: "Hydronephrosis grading and stone detection"},
		{Label: "Ocular (Retinal)", Query: "Ocular POCUS for retinal detachment and increased ICP"},
		{Label: "Pneumothorax", Query: "Lung point and loss of sliding for pneumothorax diagnosis"},
	},
	models.ModePediatric: {
		{Label: "Intussusception", Query: "Target sign and scanning for intussusception"},
		{Label: "Appendicitis", Query: "Criteria and scanning technique for pediatric appendicitis"},
		{Label: "Pyloric Stenosis", Query: "Measurement of muscle thickness and length in IHPS"},
		{Label: "NEC (Neonatal)", Query: "Pneumatosis intestinalis detection for neonatal NEC"},
		{Label: "Testicular Torsion", Query: "Doppler flow and Whirlpool sign in scrotal emergency"},
		{Label: "Hip Effusion", Query: "Hip joint effusion measurement and side comparison"},
		{Label: "Pediatric Pneumonia", Query: "Consolidation and B-line analysis in children"},
		{Label: "Abscess vs. Cellulitis", Query: "Distinguishing abscess and Swirl sign in soft tissue"},
		{Label: "Skull Fracture", Query: "Skull fracture and hematoma detection post-trauma"},
		{Label: "Bladder/Residual", Query: "Bladder volume calculation and post-void residual"},
	},
}

var koreanActions = map[models.Mode][]QuickAction{
	models.ModeAdult: {
		{Label: "eFAST (외상)", Query: "외상 환자 eFAST 프로토콜 및 복수 확인 방법"},
		{Label: "RUSH (쇼크)", Query: "쇼크 환자 RUSH 프로토콜(Pump, Tank, Pipes) 가이드"},
		{Label: "BLUE (호흡곤란)", Query: "급성 호흡부전 감별을 위한 BLUE 프로토콜 소견"},
		{Label: "AAA (대동맥류)", Query: "복부 대동맥류 파열 의심 시 스캔 및 측정 방법"},
		{Label: "DVT (심부정맥혈전)", Query: "2-point 압박법을 이용한 DVT 진단 가이드"},
		{Label: "심장 (Tamponade)", Query: "심낭 삼출 및 심장 눌림증(Tamponade) 초음파 소견"},
		{Label: "급성 담낭염", Query: "담낭염 진단을 위한 Murphy sign 및 벽 비후 측정"},
		{Label: "수신증/요로결석", Query: "신산통 환자 수신증 단계 분류 및 결석 확인"},
		{Label: "안구 (망막박리)", Query: "안구 초음파를 통한 망막박리 및 안압 상승 확인"},
		{Label: "기흉 (Lung Point)", Query: "폐 슬라이딩 소실 및 Lung point 확인을 통한 기흉 진단"},
	},
	models.ModePediatric: {
		{Label: "장중첩증", Query: "소아 장중첩증(Intussusception) Target sign 판독"},
		{Label: "충수돌기염", Query: "소아 충수돌기염(Appendicitis) 진단 기준 및 스캔법"},
		{Label: "유문협착증", Query: "비후성 유문협착증(IHPS) 근육 두께 및 길이 측정"},
		{Label: "괴사성 장염 (NEC)", Query: "신생아 NEC 의심 시 Pneumatosis intestinalis 확인"},
		{Label: "고환 염전", Query: "급성 음낭 통증 시 고환 염전(Torsion) 혈류 확인"},
		{Label: "고관절 삼출", Query: "소아 고관절 삼출액(Hip effusion) 측정 및 건측 비교"},
		{Label: "소아 폐렴", Query: "소아 폐렴 진단을 위한 Consolidation 및 B-line 분석"},
		{Label: "농양 vs 봉와직염", Query: "연부조직 감염 시 농양(Abscess) 유무 및 Swirl sign 확인"},
		{Label: "두개골 골절", Query: "소아 외상 시 초음파를 통한 두개골 골절 및 혈종 확인"},
		{Label: "방광 용적/잔뇨", Query: "소아 배뇨 장애 시 방광 용적 계산 및 잔뇨 측정"},
	},
}

func english() Translation {
	return Translation{
		Welcome:        "**Welcome to " + AppName + ".**\n\nI am an intelligent consultant supporting everything from emergency POCUS to precision diagnostic ultrasound.",
		AdultLabel:     "Adult",
		PediatricLabel: "Pediatric",
		QuickActions:   englishActions,
	}
}

func withOverrides(welcome, adult, pediatric string) Translation {
	t := english()
	t.Welcome = welcome
	t.AdultLabel = adult
	t.PediatricLabel = pediatric
	return t
}

var translations = map[string]Translation{
	"en": english(),
	"ko": {
		Welcome:        "**" + AppName + "에 오신 것을 환영합니다.**\n\n저는 응급 현장의 POCUS부터 정밀 진단 초음파까지 지원하는 지능형 컨설턴트입니다.",
		AdultLabel:     "성인 (Adult)",
		PediatricLabel: "소아 (Pediatric)",
		QuickActions:   koreanActions,
	},
	"ja": withOverrides("**"+AppName+"へようこそ。**\n\n私は救急現場のPOCUSから精密診断超音波までサポートするインテリジェントコンサルタントです。", "成人 (Adult)", "小児 (Pediatric)"),
	"zh": withOverrides("**欢迎使用 "+AppName+"。**\n\n我是您的智能超声顾问，支持从急诊 POCUS 到精准诊断超声的所有领域。", "成人 (Adult)", "儿科 (Pediatric)"),
	"es": withOverrides("**Bienvenido a "+AppName+".**\n\nSoy un consultor inteligente que apoya desde POCUS de emergencia hasta ecografía de diagnóstico de precisión.", "Adulto", "Pediátrico"),
	"fr": withOverrides("**Bienvenue sur "+AppName+".**\n\nJe suis un consultant intelligent vous accompagnant du POCUS d'urgence à l'échographie diagnostique de précision.", "Adulte", "Pédiatrique"),
	"de": withOverrides("**Willkommen bei "+AppName+".**\n\nIch bin ein intelligenter Berater, der Sie vom Notfall-POCUS bis zur Präzisionsdiagnostik unterstützt.", "Erwachsene", "Kinder"),
	"vi": withOverrides("**Chào mừng bạn đến với "+AppName+".**\n\nTôi là chuyên gia tư vấn thông minh hỗ trợ từ POCUS cấp cứu đến siêu âm chẩn đoán chính xác.", "Người lớn", "Trẻ em"),
	"th": withOverrides("**ยินดีต้อนรับสู่ "+AppName+"**\n\nฉันเป็นที่ปรึกษาอัจฉริยะที่สนับสนุนตั้งแต่ POCUS ฉุกเฉินไปจนถึงการอัลตราซาวนด์วินิจฉัยที่แม่นยำ", "ผู้ใหญ่", "เด็ก"),
	"id": withOverrides("**Selamat datang di "+AppName+".**\n\nSaya adalah konsultan cerdas yang mendukung POCUS darurat hingga ultrasonografi diagnostik presisi.", "Dewasa", "Anak-anak"),
}

// For returns the translation for code, falling back to English.
func For(code string) Translation {
	if t, ok := translations[code]; ok {
		return t
	}
	return translations["en"]
}

// QuickActions lists the shortcuts for mode in the given display language.
func QuickActions(code string, mode models.Mode) []QuickAction {
	return For(code).QuickActions[mode]
}

// MatchQuickAction returns the label of the quick action whose query equals text.
func MatchQuickAction(code string, mode models.Mode, text string) (string, bool) {
	for _, a := range QuickActions(code, mode) {
		if a.Query == text {
			return a.Label, true
		}
	}
	return "", false
}

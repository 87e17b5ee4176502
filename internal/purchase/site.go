package purchase

import (
	"fmt"

	"github.com/dreamup/lotto-agent/internal/agent"
)

// Site URLs
const (
	LoginURL    = "https://www.dhlottery.co.kr/user.do?method=login"
	PaymentURL  = "https://www.dhlottery.co.kr/payment.do?method=payment"
	GameURL     = "https://ol.dhlottery.co.kr/olotto/game/game645.do"
	myPageSSL   = "https://www.dhlottery.co.kr/userSsl.do?method=myPage"
	myPagePlain = "https://www.dhlottery.co.kr/myPage.do?method=myPage"
	myPageUser  = "https://www.dhlottery.co.kr/user.do?method=myPage"
)

// MyPageURLs are tried in order when reading the balance
var MyPageURLs = []string{myPageSSL, myPagePlain, myPageUser}

// loginMarkers appear in the URL or page once logged in
var loginMarkers = []string{"마이페이지", "로그아웃", "myPage", "logout"}

// logoutMarkers in the page text only show for a logged-in user
var logoutMarkers = []string{"로그아웃", "logout", "Logout"}

// purchaseMarkers appear on the page after a completed purchase
var purchaseMarkers = []string{"구매완료", "구매성공", "success", "complete", "결제완료"}

var (
	userIDTarget = agent.Target{
		Name: "user id field",
		Locators: []agent.Locator{
			agent.ID("userId"),
			agent.Name("userId"),
			agent.CSS("input[name='userId']"),
			agent.XPath("//input[@placeholder='아이디']"),
			agent.CSS("input[type='text']:first-of-type"),
		},
	}

	passwordTarget = agent.Target{
		Name: "password field",
		Locators: []agent.Locator{
			agent.ID("password"),
			agent.Name("password"),
			agent.CSS("input[type='password']"),
			agent.XPath("//input[@placeholder='비밀번호']"),
		},
	}

	loginButtonTarget = agent.Target{
		Name: "login button",
		Locators: []agent.Locator{
			agent.CSS("input[type='submit'][value='로그인']"),
			agent.CSS("button[type='submit']"),
			agent.XPath("//a[contains(@class,'btn_common') and contains(text(),'로그인')]"),
			agent.Text("로그인"),
		},
	}

	chargeAmountTarget = agent.Target{
		Name:     "charge amount",
		Locators: []agent.Locator{agent.ID("EcAmt"), agent.Name("EcAmt")},
	}

	chargeButtonTarget = agent.Target{
		Name: "easy charge button",
		Locators: []agent.Locator{
			agent.CSS("button.btn_common.mid.blu[onclick='goEasyChargePC()']"),
			agent.CSS("button[onclick*='goEasyChargePC']"),
		},
		Script: "goEasyChargePC()",
	}

	keypadContainer = []agent.Locator{
		agent.ID("nppfs-keypad-ecpassword"),
		agent.CSS(".nppfs-keypad"),
		agent.CSS(".kpd-wrap"),
	}

	keypadKeys = agent.CSS(".kpd-data[data-action*='data:']")

	quantityTarget = agent.Target{
		Name:     "purchase quantity",
		Locators: []agent.Locator{agent.ID("amoundApply")},
	}

	autoSelectTarget = agent.Target{
		Name:      "auto select",
		Locators:  []agent.Locator{agent.ID("checkAutoSelect")},
		Secondary: []agent.Locator{agent.CSS("label[for='checkAutoSelect']")},
	}

	applySelectionTarget = agent.Target{
		Name:     "apply selection",
		Locators: []agent.Locator{agent.ID("btnSelectNum"), agent.CSS("input[value='확인'][id='btnSelectNum']")},
	}

	buyButtonTarget = agent.Target{
		Name:     "buy button",
		Locators: []agent.Locator{agent.ID("btnBuy"), agent.CSS("input[value='구매하기']")},
	}

	confirmLayerTarget = agent.Target{
		Name: "purchase confirm",
		Locators: []agent.Locator{
			agent.CSS("#popupLayerConfirm input[value='확인']"),
			agent.XPath("//input[@value='확인']"),
		},
		Script: "closepopupLayerConfirm(true)",
	}
)

// numberTarget is the checkbox of one number on the game page
func numberTarget(n int) agent.Target {
	id := fmt.Sprintf("check645num%d", n)
	return agent.Target{
		Name:      fmt.Sprintf("number %d", n),
		Locators:  []agent.Locator{agent.ID(id)},
		Secondary: []agent.Locator{agent.CSS(fmt.Sprintf("label[for='%s']", id))},
		Script:    fmt.Sprintf(`(function(){
			var cb = document.getElementById('%s');
			cb.checked = true;
			if (typeof checkLength645 === 'function') { checkLength645($(cb)); }
		})()`, id),
	}
}

// selectedCountScript counts checked number boxes
const selectedCountScript = `document.querySelectorAll("input[id^='check645num']:checked").length`

// mixedTabScript activates the mixed selection tab of the game page
const mixedTabScript = `(function(){ if (typeof selectWayTab === 'function') { selectWayTab(0); } })()`
